// Package channel holds the transport adapters. Each adapter verifies and
// normalizes its platform's payloads and delivers outbound text; the
// dialogue core never sees a platform-specific shape.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Channel names used across the system.
const (
	Telegram  = "telegram"
	Messenger = "messenger"
	WhatsApp  = "whatsapp"
)

// Message is one normalized inbound delivery from any platform.
type Message struct {
	Channel        string
	ExternalUserID string
	PageOrBotID    string
	MessageID      string
	Text           string
}

// TextSender delivers text on one platform.
type TextSender interface {
	SendText(ctx context.Context, destination, text string) error
}

// Mux routes outbound sends to the adapter registered for the channel.
type Mux struct {
	mu      sync.RWMutex
	senders map[string]TextSender
	logger  *slog.Logger
}

// NewMux builds an empty sender registry.
func NewMux(logger *slog.Logger) *Mux {
	return &Mux{
		senders: map[string]TextSender{},
		logger:  logger.With("component", "channel"),
	}
}

// Register installs the adapter for a channel name.
func (m *Mux) Register(channel string, sender TextSender) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[channel] = sender
}

// SendText delivers text through the channel's adapter.
func (m *Mux) SendText(ctx context.Context, channel, destination, text string) error {
	m.mu.RLock()
	sender, ok := m.senders[channel]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", channel)
	}
	if err := sender.SendText(ctx, destination, text); err != nil {
		return fmt.Errorf("send via %s: %w", channel, err)
	}
	return nil
}
