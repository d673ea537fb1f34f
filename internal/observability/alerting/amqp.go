package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig 描述 AMQP 告警通道的连接参数。
type AMQPConfig struct {
	URL   string
	Queue string
}

// AMQPNotifier 将告警事件以 JSON 形式投递到消息队列，
// 供外部的运维消费方（工单、值班机器人等）订阅。
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPNotifier 建立连接并声明目标队列。
func NewAMQPNotifier(cfg AMQPConfig) (*AMQPNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("AMQP URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "microdao.alerts"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 AMQP 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 AMQP channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 AMQP 队列失败: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, queue: queue}, nil
}

// Channel 返回 AMQP 渠道。
func (n *AMQPNotifier) Channel() Channel { return ChannelAMQP }

// Notify 发布事件。
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.ch == nil {
		return errors.New("AMQP 通知器未初始化")
	}
	body, err := json.Marshal(struct {
		Code       string            `json:"code"`
		Message    string            `json:"message"`
		Severity   string            `json:"severity"`
		Stage      string            `json:"stage"`
		Network    string            `json:"network"`
		Metadata   map[string]string `json:"metadata,omitempty"`
		OccurredAt time.Time         `json:"occurred_at"`
	}{
		Code:       string(event.Code),
		Message:    event.Message,
		Severity:   string(event.Severity),
		Stage:      event.Stage,
		Network:    event.Network,
		Metadata:   event.Metadata,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("序列化告警事件失败: %w", err)
	}
	return n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close 释放连接。
func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	var err error
	if n.ch != nil {
		err = errors.Join(err, n.ch.Close())
	}
	if n.conn != nil {
		err = errors.Join(err, n.conn.Close())
	}
	return err
}

var _ Notifier = (*AMQPNotifier)(nil)
