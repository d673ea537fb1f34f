package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "MicroAI-DAO/internal/errors"
)

func TestWebhookSendPostsContentPayload(t *testing.T) {
	var (
		gotMethod      string
		gotContentType string
		gotBody        map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	if err := client.Send(context.Background(), "🚀 MicroAI DAO deployed successfully!"); err != nil {
		t.Fatalf("Send 失败: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s, want POST", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content-type = %s", gotContentType)
	}
	if gotBody["content"] != "🚀 MicroAI DAO deployed successfully!" {
		t.Fatalf("payload = %v", gotBody)
	}
}

func TestWebhookSendIsNoopWithoutURL(t *testing.T) {
	client := NewWebhookClient("")
	if client.Enabled() {
		t.Fatal("空地址不应视为已启用")
	}
	if err := client.Send(context.Background(), "ignored"); err != nil {
		t.Fatalf("未配置地址时 Send 应为 no-op: %v", err)
	}
}

func TestWebhookSendRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	if err := client.Send(context.Background(), "hello"); err == nil {
		t.Fatal("4xx 响应应当返回错误")
	}
}

func TestWebhookNotifierFormatsEvent(t *testing.T) {
	var content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		content = payload["content"]
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := &WebhookNotifier{Client: NewWebhookClient(server.URL)}
	err := notifier.Notify(context.Background(), Event{
		Code:     xerrors.CodeMissingArtifact,
		Message:  "governance 程序产物不存在",
		Severity: xerrors.SeverityCritical,
		Stage:    "deploy",
		Network:  "devnet",
	})
	if err != nil {
		t.Fatalf("Notify 失败: %v", err)
	}
	for _, fragment := range []string{"MISSING_ARTIFACT", "deploy", "devnet", "critical"} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("通知内容缺少 %q: %s", fragment, content)
		}
	}
}
