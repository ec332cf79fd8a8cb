package repo

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrNotFound is returned by lookups when no matching row exists.
var ErrNotFound = errors.New("not found")

// Store defines the interface for data persistence.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Tenants
	ResolveOwner(ctx context.Context, channel, pageOrBotID string) (string, error)

	// Sessions
	GetOrCreateSession(ctx context.Context, ownerUserID, channel, externalUserID string) (*BotSession, error)
	SaveSession(ctx context.Context, session *BotSession) error

	// Conversations
	GetOrCreateConversation(ctx context.Context, ownerUserID, channel, externalUserID string) (*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	SetConversationPurchased(ctx context.Context, id string, purchased bool) error
	AdvanceEpisode(ctx context.Context, id string) error

	// Sections
	GetOpenSection(ctx context.Context, conversationID string) (*ChatSection, error)
	GetOpenSectionByNumber(ctx context.Context, conversationID string, episode, number int) (*ChatSection, error)
	GetSectionByID(ctx context.Context, id string) (*ChatSection, error)
	CreateSection(ctx context.Context, section ChatSection) (*ChatSection, error)
	MarkSectionPurchased(ctx context.Context, id string, purchased bool) error
	CloseSectionRecord(ctx context.Context, id string, summary *string, messageCount int, purchased bool, closedAt time.Time) error
	ListClosedSections(ctx context.Context, conversationID string, limit int) ([]ChatSection, error)

	// Messages
	InsertChatMessage(ctx context.Context, msg ChatMessage) error
	ListMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]ChatMessage, error)
	AssignMessagesToSection(ctx context.Context, conversationID, sectionID string, since time.Time) error

	// Catalog
	SearchProducts(ctx context.Context, ownerUserID, query string, limit int) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error

	// Customers
	FindCustomerByChannelID(ctx context.Context, ownerUserID, channel, channelUserID string) (*Customer, error)
	FindCustomerByEmail(ctx context.Context, ownerUserID, email string) (*Customer, error)
	FindCustomerByPhone(ctx context.Context, ownerUserID, phone string) (*Customer, error)
	CreateCustomer(ctx context.Context, profile CustomerProfile) (*Customer, error)
	UpdateCustomer(ctx context.Context, id string, profile CustomerProfile) (*Customer, error)

	// Orders
	InsertOrder(ctx context.Context, order Order) (*Order, error)
	InsertOrderItems(ctx context.Context, items []OrderItem) error
	DeleteOrder(ctx context.Context, id string) error

	// API Keys
	SyncGeminiKeys(ctx context.Context, keys []string) error
	ListActiveGeminiKeys(ctx context.Context) ([]APIKey, error)
	SetCooldownUntil(ctx context.Context, id string, until time.Time) error
	ClearCooldown(ctx context.Context, id string) error
}
