package deploy

import (
	"context"
	"log/slog"
	"time"

	"MicroAI-DAO/internal/config"
	xerrors "MicroAI-DAO/internal/errors"
	"MicroAI-DAO/internal/observability/alerting"
	"MicroAI-DAO/internal/solana"
	"MicroAI-DAO/internal/storage/statefile"
	"MicroAI-DAO/pkg/logger"

	"github.com/google/uuid"
)

// StageOutcome 描述单个阶段的结束方式。
type StageOutcome string

const (
	StageOutcomeSucceeded StageOutcome = "succeeded"
	StageOutcomeFailed    StageOutcome = "failed"
	// StageOutcomeNotSupported 表示阶段尚未实现。它必须显式上报，
	// 不允许被折叠成静默的成功。
	StageOutcomeNotSupported StageOutcome = "not_supported"
)

// Result 是流水线各阶段之间显式传递的不可变结果。
// 所有标识符只在产生它的阶段写入一次，后续阶段与监控循环只读。
type Result struct {
	Network             string
	GovernanceProgramID string
	MembershipProgramID string
	GovernanceAccount   string
	MembershipAccount   string
	ExecAIAccount       string
}

// KeyMaterial 汇总流水线所需的全部签名身份。
type KeyMaterial struct {
	OperatorPath          string
	ExecAIPath            string
	GovernanceProgramPath string
	MembershipProgramPath string
	OperatorPubkey        string
	ExecAIPubkey          string
}

// Pipeline 按固定顺序执行各供应阶段。
// 每次进程生命周期内至多完整运行一次；存在有效部署记录时整体跳过。
type Pipeline struct {
	cli     *solana.CLI
	runner  solana.Runner
	store   *statefile.Store
	alerter alerting.Dispatcher
	cfg     *config.Config
	network solana.NetworkDefinition
	runID   string
	log     *slog.Logger
}

// Option 定义可选配置。
type Option func(*Pipeline)

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(p *Pipeline) {
		p.alerter = dispatcher
	}
}

// WithRunner 替换依赖检查阶段使用的命令执行器。
func WithRunner(runner solana.Runner) Option {
	return func(p *Pipeline) {
		if runner != nil {
			p.runner = runner
		}
	}
}

// New 构造流水线。
func New(cli *solana.CLI, store *statefile.Store, cfg *config.Config, network solana.NetworkDefinition, opts ...Option) *Pipeline {
	p := &Pipeline{
		cli:     cli,
		runner:  solana.NewExecRunner(),
		store:   store,
		cfg:     cfg,
		network: network,
		runID:   uuid.NewString(),
		log:     logger.Named("pipeline"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run 顺序执行全部阶段并返回最终的部署记录。
// 任意阶段失败即中止整个供应流程，已完成阶段之后不再持久化任何状态。
func (p *Pipeline) Run(ctx context.Context) (*statefile.DeploymentRecord, error) {
	p.log.Info("开始供应流水线",
		slog.String("run_id", p.runID),
		slog.String("network", p.cfg.Network.Name),
	)

	if err := p.checkDependencies(ctx); err != nil {
		return nil, p.fail(ctx, "dependencies", err)
	}
	if err := p.setupNetwork(ctx); err != nil {
		return nil, p.fail(ctx, "network", err)
	}
	keys, err := p.ensureKeyMaterial(ctx)
	if err != nil {
		return nil, p.fail(ctx, "keys", err)
	}
	if err := p.buildPrograms(ctx); err != nil {
		return nil, p.fail(ctx, "build", err)
	}

	result := Result{Network: p.cfg.Network.Name}
	result, err = p.deployPrograms(ctx, keys, result)
	if err != nil {
		return nil, p.fail(ctx, "deploy", err)
	}
	result, err = p.provisionAccounts(ctx, keys, result)
	if err != nil {
		return nil, p.fail(ctx, "accounts", err)
	}

	outcome, err := p.initializePrograms(ctx, keys, result)
	switch outcome {
	case StageOutcomeFailed:
		return nil, p.fail(ctx, "initialize", err)
	case StageOutcomeNotSupported:
		// 明确接受的缺口：记入日志并告警，不阻塞流水线。
		p.log.Warn("程序初始化阶段尚未实现，按已接受的跳过处理",
			slog.String("run_id", p.runID))
		alerting.Emit(ctx, p.alerter, alerting.Event{
			Code:     xerrors.CodeStageNotSupported,
			Message:  "程序初始化阶段尚未实现",
			Severity: xerrors.SeverityWarning,
			Stage:    "initialize",
			Network:  p.cfg.Network.Name,
		})
	}

	record := statefile.DeploymentRecord{
		GovernanceProgramID: result.GovernanceProgramID,
		MembershipProgramID: result.MembershipProgramID,
		GovernanceAccount:   result.GovernanceAccount,
		MembershipAccount:   result.MembershipAccount,
		ExecAIAccount:       result.ExecAIAccount,
		Network:             result.Network,
		LastUpdated:         time.Now().UTC(),
	}
	if err := p.store.Save(record); err != nil {
		return nil, p.fail(ctx, "persist", xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存部署记录失败"))
	}

	p.log.Info("供应流水线完成",
		slog.String("run_id", p.runID),
		slog.String("governance_program_id", record.GovernanceProgramID),
		slog.String("membership_program_id", record.MembershipProgramID),
	)
	logger.Audit().Info("部署完成",
		slog.String("run_id", p.runID),
		slog.String("network", record.Network),
		slog.String("governance_program_id", record.GovernanceProgramID),
		slog.String("membership_program_id", record.MembershipProgramID),
	)
	return &record, nil
}

// Provision 是顶层编排入口：存在有效部署记录时原样返回并完全跳过
// 流水线（零外部调用），否则执行完整流水线。第二个返回值表示是否
// 走了恢复路径。
func Provision(ctx context.Context, p *Pipeline, store *statefile.Store) (*statefile.DeploymentRecord, bool, error) {
	record, err := store.Load()
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取部署记录失败")
	}
	if record != nil {
		return record, true, nil
	}
	record, err = p.Run(ctx)
	if err != nil {
		return nil, false, err
	}
	return record, false, nil
}

// fail 在任何控制流决策之前先落日志，再派发告警，最后向上传播。
func (p *Pipeline) fail(ctx context.Context, stage string, err error) error {
	p.log.Error("供应阶段失败",
		slog.String("run_id", p.runID),
		slog.String("stage", stage),
		slog.String("severity", string(xerrors.SeverityOf(err))),
		slog.Any("error", err),
	)
	if xerrors.ShouldAlert(err) {
		alerting.Emit(ctx, p.alerter, alerting.EventFromError(stage, p.cfg.Network.Name, err))
	}
	return err
}
