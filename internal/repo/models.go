package repo

import "time"

// Stage is one state of the dialogue machine.
type Stage string

const (
	StageDiscovering        Stage = "discovering"
	StageConfirmingProducts Stage = "confirming_products"
	StageConfirmingOrder    Stage = "confirming_order"
	StageCollectingContact  Stage = "collecting_contact"
)

// Valid reports whether the stage is one of the four defined stages.
func (s Stage) Valid() bool {
	switch s {
	case StageDiscovering, StageConfirmingProducts, StageConfirmingOrder, StageCollectingContact:
		return true
	}
	return false
}

// CartItem is one line of a session cart. Quantity is always >= 1 once
// stored; a zero quantity means the line must be removed.
type CartItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
}

// Contact holds the partially collected delivery contact. Empty string means
// the field has not been provided yet.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Complete reports whether enough fields exist to place an order:
// a name, an address, and at least one of phone or email.
func (c Contact) Complete() bool {
	return c.Name != "" && c.Address != "" && (c.Phone != "" || c.Email != "")
}

// PendingProducts stores the unresolved product query shown to the user
// during disambiguation together with its candidate results.
type PendingProducts struct {
	Query      string    `json:"query"`
	Candidates []Product `json:"candidates"`
}

// Turn is one entry of the bounded conversation history ring.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// BotSession is the durable dialogue state for one
// (owner_user_id, channel, external_user_id) key.
type BotSession struct {
	ID              string
	OwnerUserID     string
	Channel         string
	ExternalUserID  string
	Stage           Stage
	Cart            []CartItem
	PendingProducts *PendingProducts
	Contact         Contact
	History         []Turn
	Metadata        map[string]any
	UpdatedAt       time.Time
}

// Conversation is the durable chat thread owning an ordered sequence of
// sections. Episode counts completed purchase cycles: it starts at 1 and
// advances when the boundary after a purchase is applied, which is what
// lets section numbering restart at 1 without colliding with the closed
// sections of earlier episodes.
type Conversation struct {
	ID             string
	OwnerUserID    string
	Channel        string
	ExternalUserID string
	Purchased      bool
	Episode        int
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// ChatSection is a time-bounded segment of a conversation. At most one
// section per conversation has a nil ClosedAt. Numbering is unique per
// (conversation, episode).
type ChatSection struct {
	ID              string
	ConversationID  string
	Episode         int
	SectionNumber   int
	Purchased       bool
	MessagesSummary *string
	MessageCount    int
	StartedAt       time.Time
	ClosedAt        *time.Time
}

// ChatMessage is one persisted conversation message, later linked to the
// section it belongs to when that section is closed.
type ChatMessage struct {
	ID             string
	ConversationID string
	SectionID      *string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Product is a catalog entry scoped to a tenant owner.
type Product struct {
	ID          string
	OwnerUserID string
	Name        string
	Category    string
	Description string
	Price       float64
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Customer is an order recipient scoped to a tenant owner. Pointer fields
// are nullable columns.
type Customer struct {
	ID             string
	OwnerUserID    string
	Channel        *string
	ChannelUserID  *string
	Name           *string
	Email          *string
	Phone          *string
	Address        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CustomerProfile carries the fields used to create or refresh a customer.
type CustomerProfile struct {
	OwnerUserID   string
	Channel       string
	ChannelUserID string
	Name          string
	Email         string
	Phone         string
	Address       string
}

// Order is a persisted order header.
type Order struct {
	ID          string
	OwnerUserID string
	CustomerID  string
	OrderRef    string
	Total       float64
	Status      string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderItem is one order line priced from the catalog at creation time.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Name      string
	Qty       int
	Price     float64
}

// APIKey represents a record in the api_keys table.
type APIKey struct {
	ID            string
	Provider      string
	Value         string
	Priority      int
	CooldownUntil *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
