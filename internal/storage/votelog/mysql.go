package votelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
)

// SQLRepository 将审计流水写入 MySQL，供长期留存与外部报表使用。
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository 建立数据库连接并初始化表结构。
func NewSQLRepository(dsn string) (*SQLRepository, error) {
	if dsn == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	repo := &SQLRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLRepository) initSchema() error {
	const ddl = `CREATE TABLE IF NOT EXISTS vote_log (
        id VARCHAR(64) PRIMARY KEY,
        proposal_id VARCHAR(128) NOT NULL,
        decision VARCHAR(16) NOT NULL,
        action TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_vote_log_created (created_at)
    )`
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("初始化 vote_log 表失败: %w", err)
	}
	return nil
}

// Append 插入一条审计记录。
func (r *SQLRepository) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}
	const stmt = `INSERT INTO vote_log (id, proposal_id, decision, action, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, stmt, entry.ID, entry.ProposalID, entry.Decision, entry.Action, entry.CreatedAt); err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// ListLatest 返回最近的若干条记录。
func (r *SQLRepository) ListLatest(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, proposal_id, decision, action, created_at FROM vote_log ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.ProposalID, &entry.Decision, &entry.Action, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取审计记录失败: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Close 释放数据库连接。
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

var _ Repository = (*SQLRepository)(nil)
