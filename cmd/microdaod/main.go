package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"MicroAI-DAO/internal/api"
	"MicroAI-DAO/internal/config"
	"MicroAI-DAO/internal/deploy"
	"MicroAI-DAO/internal/governance"
	"MicroAI-DAO/internal/observability/alerting"
	"MicroAI-DAO/internal/solana"
	"MicroAI-DAO/internal/storage/statefile"
	"MicroAI-DAO/internal/storage/votelog"
	"MicroAI-DAO/pkg/logger"
)

// main 是 microdaod 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("microdaod 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("MICRODAO_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "microdao.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled: true,
			Path:    cfg.Logging.AuditPath,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}

	definitions, err := solana.LoadNetworkDefinitions(cfg.Network.DefinitionsPath)
	if err != nil {
		return err
	}
	network, err := definitions.Lookup(cfg.Network.Name)
	if err != nil {
		return err
	}

	cli := solana.NewCLI()

	webhook := alerting.NewWebhookClient(cfg.Alerting.WebhookURL)
	notifiers := []alerting.Notifier{&alerting.WebhookNotifier{Client: webhook}}
	if cfg.Alerting.AMQP.URL != "" {
		amqpNotifier, err := alerting.NewAMQPNotifier(alerting.AMQPConfig{
			URL:   cfg.Alerting.AMQP.URL,
			Queue: cfg.Alerting.AMQP.Queue,
		})
		if err != nil {
			return err
		}
		defer amqpNotifier.Close()
		notifiers = append(notifiers, amqpNotifier)
	}
	alerter := alerting.NewFanout(notifiers...)

	stateStore := statefile.NewStore(cfg.Storage.DeploymentPath)

	// 部署记录存在即跳过全部供应阶段，直接进入监控循环。
	pipeline := deploy.New(cli, stateStore, cfg, network,
		deploy.WithAlertDispatcher(alerter),
	)
	record, resumed, err := deploy.Provision(ctx, pipeline, stateStore)
	if err != nil {
		notify(ctx, webhook, fmt.Sprintf("❌ Error deploying MicroAI DAO: %v", err))
		return err
	}
	if resumed {
		logger.L().Info("检测到既有部署记录，跳过供应流水线",
			slog.String("network", record.Network),
			slog.String("path", stateStore.Path()),
		)
	}
	// 恢复路径同样视为部署成功，照常对外通知。
	notify(ctx, webhook, fmt.Sprintf("🚀 MicroAI DAO deployed successfully!\nGovernance: %s\nMembership: %s",
		record.GovernanceProgramID, record.MembershipProgramID))

	proposalStore, closeProposals, err := buildProposalStore(cfg)
	if err != nil {
		return err
	}
	defer closeProposals()

	auditRepo, closeAudit, err := buildVoteLog(cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	engine := governance.NewEngine(cli, proposalStore,
		cfg.Keys.ExecAIPath, record.GovernanceProgramID,
		governance.WithAuditRepository(auditRepo),
	)

	if cfg.Server.Address != "" {
		server := api.NewServer(cfg.Server.Address, stateStore, proposalStore, auditRepo)
		go func() {
			if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("状态服务退出", slog.Any("error", err))
			}
		}()
	}

	monitor := governance.NewMonitor(engine, cfg.Monitor.CheckInterval(),
		governance.WithAutoRestart(cfg.Monitor.AutoRestart),
		governance.WithRestartDelay(cfg.Monitor.RestartDelay()),
		governance.WithAlertDispatcher(alerter),
		governance.WithNetwork(cfg.Network.Name),
	)
	return monitor.Run(ctx)
}

// buildProposalStore 按配置选择提案集合的持久化后端。
func buildProposalStore(cfg *config.Config) (governance.ProposalStore, func(), error) {
	switch cfg.Storage.Proposals.Driver {
	case "", "file":
		return governance.NewFileStore(cfg.Storage.Proposals.Path), func() {}, nil
	case "redis":
		store, err := governance.NewRedisStore(governance.RedisStoreConfig{
			Address:  cfg.Storage.Proposals.Redis.Address,
			Password: cfg.Storage.Proposals.Redis.Password,
			DB:       cfg.Storage.Proposals.Redis.DB,
			Key:      cfg.Storage.Proposals.Redis.Key,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的提案存储驱动: %s", cfg.Storage.Proposals.Driver)
	}
}

// buildVoteLog 按配置选择投票审计流水的持久化后端。
func buildVoteLog(cfg *config.Config) (votelog.Repository, func(), error) {
	switch cfg.Storage.VoteLog.Driver {
	case "", "file":
		repo, err := votelog.NewFileRepository(cfg.Storage.VoteLog.Path)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case "mysql":
		repo, err := votelog.NewSQLRepository(cfg.Storage.VoteLog.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的投票审计驱动: %s", cfg.Storage.VoteLog.Driver)
	}
}

// notify 发送尽力而为的 webhook 通知，失败只记日志。
func notify(ctx context.Context, webhook *alerting.WebhookClient, message string) {
	if err := webhook.Send(ctx, message); err != nil {
		logger.L().Error("发送通知失败", slog.Any("error", err))
	}
}
