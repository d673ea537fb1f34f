package votelog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry 表示一次投票或链上留痕动作的审计记录。
type Entry struct {
	ID         string `json:"id"`
	ProposalID string `json:"proposal_id"`
	Decision   string `json:"decision"`
	Action     string `json:"action"`
	CreatedAt  int64  `json:"created_at"`
}

// Repository 抽象投票审计流水的持久化接口。
type Repository interface {
	Append(ctx context.Context, entry Entry) error
	ListLatest(ctx context.Context, limit int) ([]Entry, error)
}

// maxCachedEntries 限制内存中保留的最近记录数量。
const maxCachedEntries = 512

// FileRepository 以追加 JSON 行的方式落盘，是默认实现。
type FileRepository struct {
	mu      sync.RWMutex
	path    string
	entries []Entry
}

// NewFileRepository 创建文件审计仓库并回放已有记录。
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("审计文件路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建审计目录失败: %w", err)
	}
	repo := &FileRepository{path: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Append 以追加写的方式记录一条审计流水。ID 为空时自动生成。
func (r *FileRepository) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开审计文件失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化审计记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}

	r.entries = append([]Entry{entry}, r.entries...)
	if len(r.entries) > maxCachedEntries {
		r.entries = r.entries[:maxCachedEntries]
	}
	return nil
}

// ListLatest 返回最近的若干条记录，新的在前。
func (r *FileRepository) ListLatest(_ context.Context, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	result := make([]Entry, limit)
	copy(result, r.entries[:limit])
	return result, nil
}

func (r *FileRepository) loadFromDisk() error {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取审计文件失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// 损坏行跳过，不影响后续记录。
			continue
		}
		r.entries = append([]Entry{entry}, r.entries...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("扫描审计文件失败: %w", err)
	}
	if len(r.entries) > maxCachedEntries {
		r.entries = r.entries[:maxCachedEntries]
	}
	return nil
}

var _ Repository = (*FileRepository)(nil)
