package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DeploymentRecord 是一次完整供应流水线的落盘结果。
// 记录存在即表示所有阶段至少成功完成过一次，顶层编排器据此跳过全部阶段。
type DeploymentRecord struct {
	GovernanceProgramID string    `json:"governance_program_id"`
	MembershipProgramID string    `json:"membership_program_id"`
	GovernanceAccount   string    `json:"governance_account"`
	MembershipAccount   string    `json:"membership_account"`
	ExecAIAccount       string    `json:"execai_account"`
	Network             string    `json:"network"`
	LastUpdated         time.Time `json:"last_updated"`
}

// Store 将部署记录序列化到固定位置的 JSON 文件。
// 单进程单写者，不做文件锁。
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore 创建状态存储。
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save 将记录写入磁盘，按需创建父目录。
// 时间戳截断到秒，保证与 ISO-8601 字符串往返一致。
func (s *Store) Save(record DeploymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.LastUpdated = record.LastUpdated.Truncate(time.Second)
	if record.LastUpdated.IsZero() {
		record.LastUpdated = time.Now().UTC().Truncate(time.Second)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建状态目录失败: %w", err)
	}

	encoded, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化部署记录失败: %w", err)
	}
	if err := os.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("写入部署记录失败: %w", err)
	}
	return nil
}

// Load 读取部署记录。文件不存在不是错误，返回 (nil, nil) 表示"无记录"。
func (s *Store) Load() (*DeploymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取部署记录失败: %w", err)
	}

	var record DeploymentRecord
	if err := json.Unmarshal(content, &record); err != nil {
		return nil, fmt.Errorf("解析部署记录失败: %w", err)
	}
	return &record, nil
}

// Path 返回状态文件位置，供日志输出。
func (s *Store) Path() string {
	return s.path
}
