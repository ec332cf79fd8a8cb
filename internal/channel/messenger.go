package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const messengerAPIBase = "https://graph.facebook.com/v19.0"

// MessengerConfig holds the Facebook Messenger adapter configuration.
type MessengerConfig struct {
	PageToken   string
	AppSecret   string
	VerifyToken string
	BaseURL     string
	Timeout     time.Duration
}

// MessengerSender speaks the Messenger Send API.
type MessengerSender struct {
	logger      *slog.Logger
	baseURL     string
	pageToken   string
	appSecret   string
	verifyToken string
	http        *http.Client
}

// NewMessenger creates a Messenger adapter.
func NewMessenger(cfg MessengerConfig, logger *slog.Logger) *MessengerSender {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = messengerAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MessengerSender{
		logger:      logger.With("component", "messenger"),
		baseURL:     base,
		pageToken:   cfg.PageToken,
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		http:        &http.Client{Timeout: timeout},
	}
}

// SendText delivers a text message to a Messenger PSID.
func (m *MessengerSender) SendText(ctx context.Context, destination, text string) error {
	payload, err := json.Marshal(map[string]any{
		"recipient": map[string]string{"id": destination},
		"message":   map[string]string{"text": text},
	})
	if err != nil {
		return fmt.Errorf("marshal messenger payload: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", m.baseURL, m.pageToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build messenger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("messenger send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("messenger send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// body. An empty app secret disables verification.
func (m *MessengerSender) VerifySignature(body []byte, header string) bool {
	if m.appSecret == "" {
		return true
	}
	expected, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(m.appSecret))
	mac.Write(body)
	return hmac.Equal([]byte(expected), []byte(hex.EncodeToString(mac.Sum(nil))))
}

// VerifyToken is the value Meta echoes during webhook subscription.
func (m *MessengerSender) VerifyToken() string {
	return m.verifyToken
}

// messengerEvent mirrors the subset of the webhook payload we consume.
type messengerEvent struct {
	Entry []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				MID  string `json:"mid"`
				Text string `json:"text"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseMessengerEvent normalizes the first text message in a webhook
// delivery. Deliveries with no text message return ok=false.
func (m *MessengerSender) ParseMessengerEvent(body []byte) (Message, bool) {
	var event messengerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return Message{}, false
	}
	for _, entry := range event.Entry {
		for _, messaging := range entry.Messaging {
			if messaging.Message.Text == "" || messaging.Sender.ID == "" {
				continue
			}
			return Message{
				Channel:        Messenger,
				ExternalUserID: messaging.Sender.ID,
				PageOrBotID:    entry.ID,
				MessageID:      messaging.Message.MID,
				Text:           messaging.Message.Text,
			}, true
		}
	}
	return Message{}, false
}
