package alerting

import (
	"context"
	"errors"
	"testing"

	xerrors "MicroAI-DAO/internal/errors"
)

type fakeNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (f *fakeNotifier) Channel() Channel { return f.channel }

func (f *fakeNotifier) Notify(_ context.Context, event Event) error {
	f.events = append(f.events, event)
	return f.err
}

func TestFanoutBroadcastsToAllChannels(t *testing.T) {
	webhook := &fakeNotifier{channel: ChannelWebhook}
	amqp := &fakeNotifier{channel: ChannelAMQP}
	dispatcher := NewFanout(webhook, nil, amqp)

	event := Event{Code: xerrors.CodeMonitorIteration, Stage: "monitor"}
	if err := dispatcher.Notify(context.Background(), event); err != nil {
		t.Fatalf("Notify 失败: %v", err)
	}
	if len(webhook.events) != 1 || len(amqp.events) != 1 {
		t.Fatalf("事件未广播到所有渠道: webhook=%d amqp=%d", len(webhook.events), len(amqp.events))
	}
}

func TestFanoutContinuesPastFailingChannel(t *testing.T) {
	broken := &fakeNotifier{channel: ChannelWebhook, err: errors.New("connection refused")}
	healthy := &fakeNotifier{channel: ChannelAMQP}
	dispatcher := NewFanout(broken, healthy)

	err := dispatcher.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure})
	if err == nil {
		t.Fatal("渠道失败应体现在返回值里")
	}
	if len(healthy.events) != 1 {
		t.Fatal("单渠道失败不应影响其他渠道")
	}
}

func TestEventFromErrorCarriesMetadata(t *testing.T) {
	err := xerrors.New(xerrors.CodeMissingArtifact, "产物不存在",
		xerrors.WithMetadata("artifact", "microai_governance.so"))

	event := EventFromError("deploy", "devnet", err)
	if event.Code != xerrors.CodeMissingArtifact {
		t.Fatalf("code = %s", event.Code)
	}
	if event.Stage != "deploy" || event.Network != "devnet" {
		t.Fatalf("事件标签错误: %+v", event)
	}
	if event.Metadata["artifact"] != "microai_governance.so" {
		t.Fatalf("元数据缺失: %v", event.Metadata)
	}
	if event.OccurredAt.IsZero() {
		t.Fatal("事件时间未填充")
	}
}
