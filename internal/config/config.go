package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述 microdaod 在启动阶段需要加载的全部配置。
type Config struct {
	Network  NetworkConfig  `json:"network"`
	Keys     KeysConfig     `json:"keys"`
	Project  ProjectConfig  `json:"project"`
	Monitor  MonitorConfig  `json:"monitor"`
	Storage  StorageConfig  `json:"storage"`
	Alerting AlertingConfig `json:"alerting"`
	Logging  LoggingConfig  `json:"logging"`
	Server   ServerConfig   `json:"server"`
}

// NetworkConfig 选择目标网络以及余额补给策略。
type NetworkConfig struct {
	Name            string  `json:"name"`
	MinBalance      float64 `json:"min_balance"`
	AutoAirdrop     bool    `json:"auto_airdrop"`
	DefinitionsPath string  `json:"definitions_path"`
}

// KeysConfig 指定各签名身份的落盘位置。
type KeysConfig struct {
	Dir          string `json:"dir"`
	OperatorPath string `json:"operator_path"`
	ExecAIPath   string `json:"execai_path"`
}

// ProjectConfig 描述合约工程目录布局。
type ProjectConfig struct {
	Dir           string `json:"dir"`
	GovernanceDir string `json:"governance_dir"`
	MembershipDir string `json:"membership_dir"`
}

// MonitorConfig 控制治理监控循环的节奏。
type MonitorConfig struct {
	CheckIntervalSeconds int  `json:"check_interval_seconds"`
	AutoRestart          bool `json:"auto_restart"`
	RestartDelaySeconds  int  `json:"restart_delay_seconds"`
}

// StorageConfig 统一描述两份持久化文档及可选后端。
type StorageConfig struct {
	DataDir        string              `json:"data_dir"`
	DeploymentPath string              `json:"deployment_path"`
	Proposals      ProposalStoreConfig `json:"proposals"`
	VoteLog        VoteLogConfig       `json:"vote_log"`
}

// ProposalStoreConfig 提案集合默认落在本地 JSON 文件，也可切换到 Redis。
type ProposalStoreConfig struct {
	Driver string      `json:"driver"`
	Path   string      `json:"path"`
	Redis  RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

// VoteLogConfig 投票审计流水默认追加到本地文件，也可落入 MySQL。
type VoteLogConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

// AlertingConfig 配置告警通道。webhook_url 为空时该通道不生效。
type AlertingConfig struct {
	WebhookURL string     `json:"webhook_url"`
	AMQP       AMQPConfig `json:"amqp"`
}

// AMQPConfig 描述 AMQP 告警通道的连接参数。
type AMQPConfig struct {
	URL   string `json:"url"`
	Queue string `json:"queue"`
}

// LoggingConfig 控制日志级别、格式与落盘位置。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// ServerConfig 控制只读状态接口的监听地址，为空时不启动。
type ServerConfig struct {
	Address string `json:"address"`
}

// 支持的网络枚举。
const (
	NetworkDevnet  = "devnet"
	NetworkTestnet = "testnet"
	NetworkMainnet = "mainnet"
)

// Load 解析指定路径的 JSON 配置文件并填充默认值。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Network.Name == "" {
		c.Network.Name = NetworkDevnet
	}
	if c.Network.MinBalance <= 0 {
		c.Network.MinBalance = 2.0
	}
	if c.Network.DefinitionsPath == "" {
		c.Network.DefinitionsPath = filepath.Join(baseDir, "networks.yaml")
	} else if !filepath.IsAbs(c.Network.DefinitionsPath) {
		c.Network.DefinitionsPath = filepath.Join(baseDir, c.Network.DefinitionsPath)
	}

	if c.Keys.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Keys.Dir = filepath.Join(home, ".config", "solana")
		} else {
			c.Keys.Dir = filepath.Join(baseDir, "keys")
		}
	}
	if c.Keys.OperatorPath == "" {
		c.Keys.OperatorPath = filepath.Join(c.Keys.Dir, "id.json")
	}
	if c.Keys.ExecAIPath == "" {
		c.Keys.ExecAIPath = filepath.Join(c.Keys.Dir, "execai.json")
	}

	if c.Project.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Project.Dir = filepath.Join(home, "microai-dao")
		} else {
			c.Project.Dir = filepath.Join(baseDir, "microai-dao")
		}
	}
	if c.Project.GovernanceDir == "" {
		c.Project.GovernanceDir = filepath.Join("programs", "governance")
	}
	if c.Project.MembershipDir == "" {
		c.Project.MembershipDir = filepath.Join("programs", "membership")
	}

	if c.Monitor.CheckIntervalSeconds <= 0 {
		c.Monitor.CheckIntervalSeconds = 60
	}
	if c.Monitor.RestartDelaySeconds <= 0 {
		c.Monitor.RestartDelaySeconds = 10
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Storage.DataDir) {
		c.Storage.DataDir = filepath.Join(baseDir, c.Storage.DataDir)
	}
	if c.Storage.DeploymentPath == "" {
		c.Storage.DeploymentPath = filepath.Join(c.Project.Dir, "scripts", "config.json")
	}
	if c.Storage.Proposals.Driver == "" {
		c.Storage.Proposals.Driver = "file"
	}
	if c.Storage.Proposals.Path == "" {
		c.Storage.Proposals.Path = filepath.Join(c.Storage.DataDir, "proposals.json")
	}
	if c.Storage.Proposals.Redis.Key == "" {
		c.Storage.Proposals.Redis.Key = "microdao:proposals"
	}
	if c.Storage.VoteLog.Driver == "" {
		c.Storage.VoteLog.Driver = "file"
	}
	if c.Storage.VoteLog.Path == "" {
		c.Storage.VoteLog.Path = filepath.Join(c.Storage.DataDir, "votes.log")
	}

	if c.Alerting.AMQP.Queue == "" {
		c.Alerting.AMQP.Queue = "microdao.alerts"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Logging.OutputPaths) == 0 {
		c.Logging.OutputPaths = []string{"stdout", filepath.Join(c.Storage.DataDir, "blockchain_deploy.log")}
	}
	if c.Logging.AuditPath == "" {
		c.Logging.AuditPath = filepath.Join(c.Storage.DataDir, "audit.log")
	}
}

// validate 检查枚举字段的取值。
func (c *Config) validate() error {
	switch c.Network.Name {
	case NetworkDevnet, NetworkTestnet, NetworkMainnet:
	default:
		return fmt.Errorf("不支持的网络: %s", c.Network.Name)
	}
	switch c.Storage.Proposals.Driver {
	case "file", "redis":
	default:
		return fmt.Errorf("不支持的提案存储驱动: %s", c.Storage.Proposals.Driver)
	}
	switch c.Storage.VoteLog.Driver {
	case "file", "mysql":
	default:
		return fmt.Errorf("不支持的投票审计驱动: %s", c.Storage.VoteLog.Driver)
	}
	return nil
}

// CheckInterval 返回监控循环的轮询间隔。
func (m MonitorConfig) CheckInterval() time.Duration {
	return time.Duration(m.CheckIntervalSeconds) * time.Second
}

// RestartDelay 返回迭代失败后的恢复等待时间。
func (m MonitorConfig) RestartDelay() time.Duration {
	return time.Duration(m.RestartDelaySeconds) * time.Second
}
