package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/gate"
)

func testAlert() alert.Alert {
	return alert.Alert{
		ID:        "a-1",
		Category:  "security",
		Priority:  alert.PriorityCritical,
		Source:    "twitter",
		Title:     "Security alert: LendX exploited",
		Summary:   "LendX protocol exploited, funds drained",
		Tags:      []string{"security", "twitter"},
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramNotifySuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	chats := []gate.Destination{{ID: "chat-1", Categories: []string{"security"}}}
	notifier := NewTelegram("token", srv.URL, chats, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat-1" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "[CRITICAL] Security alert: LendX exploited") {
		t.Fatalf("text 应包含标题: %q", received["text"])
	}
	if !strings.Contains(received["text"], "Category: security") {
		t.Fatalf("text 应包含分类: %q", received["text"])
	}
}

func TestTelegramNotifyRoutesByChatSubscription(t *testing.T) {
	var mu sync.Mutex
	var chatIDs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		mu.Lock()
		chatIDs = append(chatIDs, payload["chat_id"])
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	chats := []gate.Destination{
		{ID: "sec-chat", Categories: []string{"security"}},
		{ID: "gov-chat", Categories: []string{"governance"}},
		{ID: "paused-chat", Categories: []string{"security"}, Paused: true},
	}
	notifier := NewTelegram("token", srv.URL, chats, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if len(chatIDs) != 1 || chatIDs[0] != "sec-chat" {
		t.Fatalf("只有订阅该分类且未暂停的会话应收到消息, 实际 %v", chatIDs)
	}
}

func TestTelegramNotifyNoSubscriberIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("无订阅者时不应发起请求")
	}))
	defer srv.Close()

	chats := []gate.Destination{{ID: "gov-chat", Categories: []string{"governance"}}}
	notifier := NewTelegram("token", srv.URL, chats, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("无订阅者应视为成功: %v", err)
	}
}

func TestTelegramNotifyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	chats := []gate.Destination{{ID: "chat-1", Categories: []string{"security"}}}
	notifier := NewTelegram("token", srv.URL, chats, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	chats := []gate.Destination{{ID: "chat-1", Categories: []string{"security"}}}
	notifier := NewTelegram("token", srv.URL, chats, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testAlert()); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestRenderMessage(t *testing.T) {
	text := renderMessage(testAlert())

	for _, want := range []string{
		"[CRITICAL] Security alert: LendX exploited",
		"Category: security",
		"Source: twitter",
		"Tags: security,twitter",
		"At: 2026-08-01T12:00:00Z UTC",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, text)
		}
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
