package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// WhatsAppConfig holds configuration to initialise the WhatsApp adapter.
type WhatsAppConfig struct {
	StorePath string
	LogLevel  string
}

// Processor handles a normalized inbound message.
type Processor interface {
	ProcessText(ctx context.Context, msg Message)
}

// WhatsAppClient wraps the WhatsMeow client. Unlike the HTTP channels it is
// a long-lived socket: inbound events arrive through the event handler
// rather than a webhook.
type WhatsAppClient struct {
	client    *whatsmeow.Client
	logger    *slog.Logger
	processor Processor
	botJID    string
}

// NewWhatsApp creates a WhatsApp adapter backed by an SQLite device store.
func NewWhatsApp(ctx context.Context, cfg WhatsAppConfig, logger *slog.Logger) (*WhatsAppClient, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}
	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &WhatsAppClient{
		client: client,
		logger: logger.With("component", "whatsapp"),
	}
	client.AddEventHandler(wc.handleEvent)
	return wc, nil
}

// SetProcessor registers the inbound message callback.
func (c *WhatsAppClient) SetProcessor(processor Processor) {
	c.processor = processor
}

// Start connects the client and handles the login/QR pairing flow.
func (c *WhatsAppClient) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp client: %w", err)
	}
	if c.client.Store.ID != nil {
		c.botJID = c.client.Store.ID.ToNonAD().String()
	}
	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the client.
func (c *WhatsAppClient) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

// SendText sends a text message to the JID named by destination.
func (c *WhatsAppClient) SendText(ctx context.Context, destination, text string) error {
	jid, err := types.ParseJID(destination)
	if err != nil {
		return fmt.Errorf("parse jid %q: %w", destination, err)
	}
	message := &waProto.Message{Conversation: proto.String(text)}
	if _, err := c.client.SendMessage(ctx, jid, message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

func (c *WhatsAppClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *WhatsAppClient) handleMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	text := evt.Message.GetConversation()
	if text == "" && evt.Message.ExtendedTextMessage != nil {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		c.logger.Debug("unsupported message type ignored", "from", evt.Info.Sender.String())
		return
	}

	if c.processor == nil {
		return
	}
	msg := Message{
		Channel:        WhatsApp,
		ExternalUserID: evt.Info.Chat.String(),
		PageOrBotID:    c.botJID,
		MessageID:      string(evt.Info.ID),
		Text:           text,
	}
	go c.processor.ProcessText(context.Background(), msg)
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
