package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookClient 向配置的 webhook 地址（Discord/Slack 风格）POST 消息体
// {"content": "<message>"}。未配置地址时所有发送都是 no-op。
type WebhookClient struct {
	url    string
	client *http.Client
}

// NewWebhookClient 创建 webhook 客户端。
func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled 返回是否配置了 webhook 地址。
func (c *WebhookClient) Enabled() bool {
	return c != nil && c.url != ""
}

// Send 发送一条纯文本通知。
func (c *WebhookClient) Send(ctx context.Context, content string) error {
	if !c.Enabled() {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("序列化通知内容失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造通知请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送通知失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("通知被拒绝: %s", resp.Status)
	}
	return nil
}

// WebhookNotifier 把告警事件格式化后经 webhook 发送。
type WebhookNotifier struct {
	Client *WebhookClient
}

// Channel 返回 webhook 渠道。
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify 发送告警消息。客户端未配置时静默跳过。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || !n.Client.Enabled() {
		return nil
	}
	content := fmt.Sprintf("[%s] %s (%s)\n阶段: %s\n网络: %s\n时间: %s",
		event.Severity, event.Code, event.Message, event.Stage, event.Network,
		event.OccurredAt.Format(time.RFC3339))
	for k, v := range event.Metadata {
		content += fmt.Sprintf("\n- %s: %s", k, v)
	}
	return n.Client.Send(ctx, content)
}

var _ Notifier = (*WebhookNotifier)(nil)
