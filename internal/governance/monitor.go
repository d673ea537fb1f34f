package governance

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "MicroAI-DAO/internal/errors"
	"MicroAI-DAO/internal/observability/alerting"
	"MicroAI-DAO/pkg/logger"
)

// State 是监控循环的状态。
type State string

const (
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

// IterationOutcome 是每轮迭代的显式结果标签，循环的状态机只对
// 这个标签做分发，不依赖任何异常类型。
type IterationOutcome string

const (
	IterationOK          IterationOutcome = "ok"
	IterationRecoverable IterationOutcome = "recoverable_error"
	IterationFatal       IterationOutcome = "fatal_error"
)

// IterationResult 携带迭代结果标签与具体错误。
type IterationResult struct {
	Outcome IterationOutcome
	Err     error
}

// Iterator 抽象一轮迭代的工作内容。
type Iterator interface {
	ProcessAll(ctx context.Context) error
}

// Monitor 是治理监控循环：每轮拉取提案集合、交给评估引擎处理，
// 然后阻塞等待下一轮。失败的迭代整体放弃，下一轮从头开始。
type Monitor struct {
	engine       Iterator
	interval     time.Duration
	restartDelay time.Duration
	autoRestart  bool
	alerter      alerting.Dispatcher
	network      string
	log          *slog.Logger
}

// MonitorOption 定义可选配置。
type MonitorOption func(*Monitor)

// WithAutoRestart 控制迭代出错后是否自动恢复。
func WithAutoRestart(enabled bool) MonitorOption {
	return func(m *Monitor) {
		m.autoRestart = enabled
	}
}

// WithRestartDelay 设置出错后的恢复等待时间。
func WithRestartDelay(delay time.Duration) MonitorOption {
	return func(m *Monitor) {
		if delay > 0 {
			m.restartDelay = delay
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) MonitorOption {
	return func(m *Monitor) {
		m.alerter = dispatcher
	}
}

// WithNetwork 标记告警事件所属网络。
func WithNetwork(network string) MonitorOption {
	return func(m *Monitor) {
		m.network = network
	}
}

// NewMonitor 构造监控循环。
func NewMonitor(engine Iterator, interval time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		engine:       engine,
		interval:     interval,
		restartDelay: 10 * time.Second,
		log:          logger.Named("monitor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Run 驱动 Polling → Stopped 状态机直到收到中断或出现终止性错误。
// 中断信号只在迭代间隙被观察，进行中的外部调用不会被打断。
func (m *Monitor) Run(ctx context.Context) error {
	if m.engine == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "监控循环未配置评估引擎")
	}

	m.log.Info("治理监控启动",
		slog.Duration("interval", m.interval),
		slog.Bool("auto_restart", m.autoRestart),
	)

	state := StatePolling
	for state == StatePolling {
		result := m.iterate(ctx)

		switch result.Outcome {
		case IterationOK:
			if !m.sleep(ctx, m.interval) {
				state = StateStopped
			}
		case IterationRecoverable:
			m.log.Error("监控迭代失败",
				slog.Any("error", result.Err),
				slog.Bool("auto_restart", m.autoRestart),
			)
			alerting.Emit(ctx, m.alerter, alerting.EventFromError("monitor", m.network,
				xerrors.Wrap(xerrors.CodeMonitorIteration, result.Err, "")))
			if !m.autoRestart {
				state = StateStopped
				break
			}
			m.log.Info("等待后恢复轮询", slog.Duration("delay", m.restartDelay))
			if !m.sleep(ctx, m.restartDelay) {
				state = StateStopped
			}
		case IterationFatal:
			if result.Err != nil && !stdErrors.Is(result.Err, context.Canceled) {
				m.log.Error("监控循环终止", slog.Any("error", result.Err))
				alerting.Emit(ctx, m.alerter, alerting.EventFromError("monitor", m.network, result.Err))
			}
			state = StateStopped
		}
	}

	m.log.Info("治理监控停止")
	return nil
}

// iterate 执行一轮并给出显式结果标签。
func (m *Monitor) iterate(ctx context.Context) IterationResult {
	select {
	case <-ctx.Done():
		return IterationResult{Outcome: IterationFatal, Err: ctx.Err()}
	default:
	}

	m.log.Debug("检查新提案")
	if err := m.engine.ProcessAll(ctx); err != nil {
		return IterationResult{Outcome: classify(err), Err: err}
	}
	return IterationResult{Outcome: IterationOK}
}

// classify 把迭代错误映射到结果标签。中断与未初始化是终止性的，
// 其余一律视为可恢复，由重启策略决定去留。
func classify(err error) IterationOutcome {
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return IterationFatal
	}
	if xerrors.CodeOf(err) == xerrors.CodeInitializationFailure {
		return IterationFatal
	}
	return IterationRecoverable
}

// sleep 阻塞等待指定时长，期间收到中断则返回 false。
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
