package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/newsdesk/internal/news"
	"github.com/deusflow/newsdesk/internal/retry"
)

// DefaultAPIURL is the Bot API base; the token is appended.
const DefaultAPIURL = "https://api.telegram.org/bot"

// maxMessageRunes stays under the 4096 limit of sendMessage.
const maxMessageRunes = 4000

// Notifier posts alert messages to one chat.
type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
	logger  *slog.Logger
}

type Option func(*Notifier)

func WithBaseURL(u string) Option { return func(n *Notifier) { n.baseURL = u } }

func WithRetry(cfg retry.RetryConfig) Option { return func(n *Notifier) { n.retry = cfg } }

func WithLogger(l *slog.Logger) Option { return func(n *Notifier) { n.logger = l } }

func New(token, chatID string, opts ...Option) (*Notifier, error) {
	if token == "" || chatID == "" {
		return nil, errors.New("telegram: token and chat id are required")
	}
	n := &Notifier{
		token:   token,
		chatID:  chatID,
		baseURL: DefaultAPIURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// SendMessage sends HTML text with link previews disabled, retrying failures.
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	attempt := 0
	err := retry.WithRetry(ctx, n.retry, func() error {
		attempt++
		err := n.sendOnce(ctx, text)
		if err != nil {
			n.logger.Warn("telegram send failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	n.logger.Info("message sent to telegram", "attempt", attempt)
	return nil
}

func (n *Notifier) sendOnce(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+n.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return retry.Permanent(fmt.Errorf("telegram API error: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}
}

// FormatAlert renders the important articles of a batch, newest first, up
// to max entries, trimmed to the message limit.
func FormatAlert(mode news.Kind, important []news.Article, max int) string {
	var b strings.Builder
	label := "news"
	if mode != "" {
		label = string(mode)
	}
	fmt.Fprintf(&b, "🔔 <b>%d important %s item(s)</b>\n\n", len(important), html.EscapeString(label))

	for i, a := range important {
		if max > 0 && i >= max {
			fmt.Fprintf(&b, "… and %d more\n", len(important)-max)
			break
		}
		entry := fmt.Sprintf("%d. <a href=\"%s\">%s</a>", i+1, html.EscapeString(a.Link), html.EscapeString(a.Title))
		if a.Source != "" {
			entry += " <i>(" + html.EscapeString(a.Source) + ")</i>"
		}
		if len([]rune(b.String()))+len([]rune(entry)) > maxMessageRunes {
			break
		}
		b.WriteString(entry)
		b.WriteString("\n")
	}
	return b.String()
}
