package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig 描述 Redis 提案存储的连接参数。
type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
}

// RedisStore 把整个提案集合序列化后保存在单个 Redis key 里，
// 保持"集合整体为持久化单元"的约定不变。
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建 Redis 提案存储。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	key := cfg.Key
	if key == "" {
		key = "microdao:proposals"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, key: key}, nil
}

// LoadAll 读取全部提案。key 不存在时返回空集合。
func (s *RedisStore) LoadAll(ctx context.Context) ([]Proposal, error) {
	content, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取提案集合失败: %w", err)
	}
	var proposals []Proposal
	if err := json.Unmarshal(content, &proposals); err != nil {
		return nil, fmt.Errorf("解析提案集合失败: %w", err)
	}
	return proposals, nil
}

// SaveAll 把整个集合一次性写回。
func (s *RedisStore) SaveAll(ctx context.Context, proposals []Proposal) error {
	encoded, err := json.Marshal(proposals)
	if err != nil {
		return fmt.Errorf("序列化提案集合失败: %w", err)
	}
	if err := s.client.Set(ctx, s.key, encoded, 0).Err(); err != nil {
		return fmt.Errorf("写入提案集合失败: %w", err)
	}
	return nil
}

// Close 释放 Redis 连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ ProposalStore = (*RedisStore)(nil)
