package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramSender delivers alerts via the Telegram Bot API sendMessage call.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// TelegramOption configures a TelegramSender.
type TelegramOption func(*TelegramSender)

// WithTelegramBaseURL points the sender at a different Bot API host.
func WithTelegramBaseURL(u string) TelegramOption {
	return func(t *TelegramSender) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithTelegramHTTPClient replaces the default 10s-timeout client.
func WithTelegramHTTPClient(c *http.Client) TelegramOption {
	return func(t *TelegramSender) { t.client = c }
}

// NewTelegramSender creates a TelegramSender for the bot token and chat.
func NewTelegramSender(token, chatID string, opts ...TelegramOption) *TelegramSender {
	t := &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: telegramBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Send posts the alert with the title in bold Markdown.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	}
	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
