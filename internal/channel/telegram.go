package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramConfig holds the Telegram bot adapter configuration.
type TelegramConfig struct {
	BotToken string
	BotID    string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramSender speaks the Telegram Bot API.
type TelegramSender struct {
	logger  *slog.Logger
	baseURL string
	token   string
	botID   string
	http    *http.Client
}

// NewTelegram creates a Telegram adapter.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) *TelegramSender {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = telegramAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSender{
		logger:  logger.With("component", "telegram"),
		baseURL: base,
		token:   cfg.BotToken,
		botID:   cfg.BotID,
		http:    &http.Client{Timeout: timeout},
	}
}

// SendText delivers a text message to a Telegram chat id.
func (t *TelegramSender) SendText(ctx context.Context, destination, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": destination,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// telegramUpdate mirrors the subset of the Bot API update we consume.
type telegramUpdate struct {
	Message struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// ParseTelegramUpdate normalizes a raw Bot API update. A non-text update
// returns ok=false.
func (t *TelegramSender) ParseTelegramUpdate(body []byte) (Message, bool) {
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return Message{}, false
	}
	if update.Message.Text == "" || update.Message.Chat.ID == 0 {
		return Message{}, false
	}
	return Message{
		Channel:        Telegram,
		ExternalUserID: strconv.FormatInt(update.Message.Chat.ID, 10),
		PageOrBotID:    t.botID,
		MessageID:      strconv.FormatInt(update.Message.MessageID, 10),
		Text:           update.Message.Text,
	}, true
}
