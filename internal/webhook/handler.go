// Package webhook accepts channel callbacks over HTTP, normalizes them, and
// hands them to the dialogue engine. The handlers ack fast: processing runs
// after the 200 is on the wire so platform retry timers never fire because
// an LLM call was slow.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"salesbot/internal/channel"
	"salesbot/internal/convo"
	"salesbot/internal/metrics"
)

const processTimeout = 60 * time.Second

// Processor consumes one normalized inbound message.
type Processor interface {
	HandleMessage(ctx context.Context, in convo.Inbound) error
}

// Handler terminates the channel webhook endpoints.
type Handler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	processor Processor
	telegram  *channel.TelegramSender
	messenger *channel.MessengerSender
}

// New creates the webhook handler. telegram and messenger may be nil when a
// channel is not configured; its endpoint then drops everything.
func New(logger *slog.Logger, metricRegistry *metrics.Metrics, processor Processor, telegram *channel.TelegramSender, messenger *channel.MessengerSender) *Handler {
	return &Handler{
		logger:    logger.With("component", "webhook"),
		metrics:   metricRegistry,
		processor: processor,
		telegram:  telegram,
		messenger: messenger,
	}
}

// HandleTelegram terminates Telegram bot webhook callbacks.
func (h *Handler) HandleTelegram(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.telegram == nil {
		h.ack(w)
		return
	}
	msg, ok := h.telegram.ParseTelegramUpdate(body)
	if !ok {
		// Malformed or non-text updates are acked and dropped so
		// Telegram stops retrying them.
		h.ack(w)
		return
	}
	h.dispatch(msg)
	h.ack(w)
}

// HandleMessenger terminates Meta webhook callbacks, including the GET
// subscription handshake.
func (h *Handler) HandleMessenger(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.verifySubscription(w, r)
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if h.messenger == nil {
		h.ack(w)
		return
	}
	if !h.messenger.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		h.metrics.Errors.WithLabelValues("webhook_signature").Inc()
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}
	msg, ok := h.messenger.ParseMessengerEvent(body)
	if !ok {
		h.ack(w)
		return
	}
	h.dispatch(msg)
	h.ack(w)
}

// inboundPayload is the normalized shape accepted on the generic endpoint,
// used by transports that do their own verification upstream.
type inboundPayload struct {
	Channel        string `json:"channel"`
	ExternalUserID string `json:"external_user_id"`
	PageOrBotID    string `json:"page_or_bot_id"`
	MessageID      string `json:"message_id"`
	Text           string `json:"text"`
}

// HandleInbound terminates pre-normalized deliveries.
func (h *Handler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var payload inboundPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.Channel == "" || payload.ExternalUserID == "" {
		h.ack(w)
		return
	}
	h.dispatch(channel.Message{
		Channel:        payload.Channel,
		ExternalUserID: payload.ExternalUserID,
		PageOrBotID:    payload.PageOrBotID,
		MessageID:      payload.MessageID,
		Text:           payload.Text,
	})
	h.ack(w)
}

// ProcessText lets socket transports reuse the same dispatch path.
func (h *Handler) ProcessText(ctx context.Context, msg channel.Message) {
	h.process(ctx, msg)
}

func (h *Handler) dispatch(msg channel.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		h.process(ctx, msg)
	}()
}

func (h *Handler) process(ctx context.Context, msg channel.Message) {
	err := h.processor.HandleMessage(ctx, convo.Inbound{
		Channel:        msg.Channel,
		ExternalUserID: msg.ExternalUserID,
		PageOrBotID:    msg.PageOrBotID,
		MessageID:      msg.MessageID,
		Text:           msg.Text,
	})
	if err != nil {
		h.metrics.Errors.WithLabelValues("webhook_process").Inc()
		h.logger.Error("message processing failed", "error", err, "channel", msg.Channel)
	}
}

func (h *Handler) verifySubscription(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if h.messenger != nil &&
		query.Get("hub.mode") == "subscribe" &&
		query.Get("hub.verify_token") == h.messenger.VerifyToken() {
		_, _ = w.Write([]byte(query.Get("hub.challenge")))
		return
	}
	http.Error(w, "verification failed", http.StatusForbidden)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		// Unreadable bodies are acked like malformed ones.
		h.ack(w)
		return nil, false
	}
	return body, true
}

func (h *Handler) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
