package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/alert"
	"github.com/lathiyaMagpiexyz/defi-news-bot/internal/gate"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, a alert.Alert) error
}

// Telegram 通过 Telegram Bot API 推送消息。Routing is per chat: a
// chat receives the alert only when it subscribes to the category and
// is not paused.
type Telegram struct {
	botToken string
	baseURL  string
	chats    []gate.Destination
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegram 构造 Telegram 告警器。
func NewTelegram(botToken, baseURL string, chats []gate.Destination, timeout time.Duration, logger zerolog.Logger) *Telegram {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &Telegram{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		chats:    chats,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。One HTTP call per receiving
// chat; the first failure aborts the remaining sends.
func (n *Telegram) Notify(ctx context.Context, a alert.Alert) error {
	receivers := gate.FilterDestinations(a, n.chats)
	if len(receivers) == 0 {
		n.logger.Debug().
			Str("alert_id", a.ID).
			Str("category", a.Category).
			Msg("no chat subscribed to category")
		return nil
	}

	text := renderMessage(a)
	for _, chat := range receivers {
		if err := n.sendMessage(ctx, chat.ID, text); err != nil {
			return err
		}
	}

	n.logger.Info().
		Str("alert_id", a.ID).
		Str("category", a.Category).
		Str("priority", a.Priority.String()).
		Int("chats", len(receivers)).
		Msg("告警已发送 (Telegram)")
	return nil
}

func (n *Telegram) sendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

func renderMessage(a alert.Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", strings.ToUpper(a.Priority.String()), a.Title))
	builder.WriteString(fmt.Sprintf("Category: %s\n", a.Category))
	builder.WriteString(fmt.Sprintf("Source: %s\n", a.Source))
	if a.Summary != "" {
		builder.WriteString(a.Summary)
		builder.WriteString("\n")
	}
	if len(a.Tags) > 0 {
		builder.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(a.Tags, ",")))
	}
	builder.WriteString(fmt.Sprintf("At: %s UTC", a.CreatedAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*Telegram)(nil)
