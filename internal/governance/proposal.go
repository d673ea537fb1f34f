package governance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Proposal 是一条治理提案。
// VotedByExecAI 一旦为 true，引擎对该提案不再有任何动作。
type Proposal struct {
	ID            string `json:"id"`
	Description   string `json:"description"`
	VotedByExecAI bool   `json:"voted_by_execai"`
}

// ProposalStore 以整个集合为持久化单元读写提案。
// 每轮处理对全集做一次性落盘，不做逐条写入。
type ProposalStore interface {
	LoadAll(ctx context.Context) ([]Proposal, error)
	SaveAll(ctx context.Context, proposals []Proposal) error
}

// FileStore 把提案集合保存为本地 JSON 数组，是默认实现。
// 单进程单写者，不做文件锁。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore 创建文件提案存储。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadAll 读取全部提案。文件不存在时返回空集合。
func (s *FileStore) LoadAll(_ context.Context) ([]Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取提案文件失败: %w", err)
	}

	var proposals []Proposal
	if err := json.Unmarshal(content, &proposals); err != nil {
		return nil, fmt.Errorf("解析提案文件失败: %w", err)
	}
	return proposals, nil
}

// SaveAll 把整个集合一次性写回磁盘。
func (s *FileStore) SaveAll(_ context.Context, proposals []Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("创建提案目录失败: %w", err)
	}
	encoded, err := json.MarshalIndent(proposals, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化提案失败: %w", err)
	}
	if err := os.WriteFile(s.path, encoded, 0o644); err != nil {
		return fmt.Errorf("写入提案文件失败: %w", err)
	}
	return nil
}

var _ ProposalStore = (*FileStore)(nil)
