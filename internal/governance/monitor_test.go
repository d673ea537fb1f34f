package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "MicroAI-DAO/internal/errors"
	"MicroAI-DAO/internal/observability/alerting"
)

type recordingDispatcher struct {
	events []alerting.Event
}

func (d *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.events = append(d.events, event)
	return nil
}

// scriptedIterator 依次返回预置的迭代错误，脚本耗尽后取消上下文。
type scriptedIterator struct {
	results []error
	calls   int
	cancel  context.CancelFunc
}

func (s *scriptedIterator) ProcessAll(context.Context) error {
	if s.calls >= len(s.results) {
		s.cancel()
		return nil
	}
	err := s.results[s.calls]
	s.calls++
	return err
}

func TestMonitorContinuesAfterRecoverableError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iterator := &scriptedIterator{
		results: []error{errors.New("transient"), nil},
		cancel:  cancel,
	}
	monitor := NewMonitor(iterator, time.Millisecond,
		WithAutoRestart(true),
		WithRestartDelay(time.Millisecond),
	)

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if iterator.calls < 2 {
		t.Fatalf("可恢复错误后应继续轮询: calls = %d", iterator.calls)
	}
}

func TestMonitorStopsWithoutAutoRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iterator := &scriptedIterator{
		results: []error{errors.New("transient"), nil},
		cancel:  cancel,
	}
	monitor := NewMonitor(iterator, time.Millisecond, WithAutoRestart(false))

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if iterator.calls != 1 {
		t.Fatalf("关闭自动恢复时首个错误就应停止: calls = %d", iterator.calls)
	}
}

func TestMonitorStopsOnFatalError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iterator := &scriptedIterator{
		results: []error{
			xerrors.New(xerrors.CodeInitializationFailure, "引擎未就绪"),
			nil,
		},
		cancel: cancel,
	}
	monitor := NewMonitor(iterator, time.Millisecond, WithAutoRestart(true))

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if iterator.calls != 1 {
		t.Fatalf("终止性错误不应触发恢复: calls = %d", iterator.calls)
	}
}

func TestMonitorAlertsOnFatalError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dispatcher := &recordingDispatcher{}
	iterator := &scriptedIterator{
		results: []error{xerrors.New(xerrors.CodeInitializationFailure, "引擎未就绪")},
		cancel:  cancel,
	}
	monitor := NewMonitor(iterator, time.Millisecond,
		WithAutoRestart(true),
		WithAlertDispatcher(dispatcher),
		WithNetwork("devnet"),
	)

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("终止性错误应派发一次告警: %d", len(dispatcher.events))
	}
	event := dispatcher.events[0]
	if event.Code != xerrors.CodeInitializationFailure {
		t.Fatalf("告警错误码 = %s, want %s", event.Code, xerrors.CodeInitializationFailure)
	}
	if event.Stage != "monitor" || event.Network != "devnet" {
		t.Fatalf("告警标签错误: %+v", event)
	}
}

func TestMonitorDoesNotAlertOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dispatcher := &recordingDispatcher{}
	iterator := &scriptedIterator{cancel: func() {}}
	monitor := NewMonitor(iterator, time.Millisecond, WithAlertDispatcher(dispatcher))

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(dispatcher.events) != 0 {
		t.Fatalf("中断退出不应派发告警: %+v", dispatcher.events)
	}
}

func TestMonitorStopsOnInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	iterator := &scriptedIterator{cancel: func() {}}
	monitor := NewMonitor(iterator, time.Millisecond, WithAutoRestart(true))

	if err := monitor.Run(ctx); err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if iterator.calls != 0 {
		t.Fatalf("已取消的上下文不应再触发迭代: calls = %d", iterator.calls)
	}
}

func TestMonitorRequiresEngine(t *testing.T) {
	monitor := NewMonitor(nil, time.Millisecond)
	err := monitor.Run(context.Background())
	if err == nil {
		t.Fatal("缺少评估引擎应当返回错误")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeInitializationFailure {
		t.Fatalf("错误码 = %s, want %s", code, xerrors.CodeInitializationFailure)
	}
}

func TestClassify(t *testing.T) {
	if got := classify(context.Canceled); got != IterationFatal {
		t.Fatalf("classify(canceled) = %s, want %s", got, IterationFatal)
	}
	if got := classify(xerrors.New(xerrors.CodeInitializationFailure, "x")); got != IterationFatal {
		t.Fatalf("classify(init failure) = %s, want %s", got, IterationFatal)
	}
	if got := classify(errors.New("transient")); got != IterationRecoverable {
		t.Fatalf("classify(other) = %s, want %s", got, IterationRecoverable)
	}
}
