package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// -- Tenants --

func (s *SQLiteStore) ResolveOwner(ctx context.Context, channel, pageOrBotID string) (string, error) {
	const q = `
SELECT owner_user_id
FROM bot_channels
WHERE channel = ? AND page_or_bot_id = ?
LIMIT 1;
`
	var owner string
	if err := s.db.QueryRowContext(ctx, q, channel, pageOrBotID).Scan(&owner); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("resolve owner: %w", err)
	}
	return owner, nil
}

// -- Sessions --

func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, ownerUserID, channel, externalUserID string) (*BotSession, error) {
	const q = `
INSERT INTO bot_sessions (id, owner_user_id, channel, external_user_id, stage, cart, conversation_history, updated_at)
VALUES (?, ?, ?, ?, 'discovering', '[]', '[]', ?)
ON CONFLICT (owner_user_id, channel, external_user_id) DO UPDATE SET
    updated_at = bot_sessions.updated_at
RETURNING id, owner_user_id, channel, external_user_id, stage, cart, pending_products, contact, conversation_history, metadata, updated_at;
`
	row := s.db.QueryRowContext(ctx, q, randomUUID(), ownerUserID, channel, externalUserID, time.Now().UTC())
	return scanSQLiteSession(row)
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *BotSession) error {
	cart, err := toJSON(session.Cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	pending, err := toJSONNullable(session.PendingProducts)
	if err != nil {
		return fmt.Errorf("marshal pending products: %w", err)
	}
	contact, err := toJSON(session.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}
	history, err := toJSON(session.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	meta, err := toJSONNullable(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
UPDATE bot_sessions
SET stage = ?,
    cart = ?,
    pending_products = ?,
    contact = ?,
    conversation_history = ?,
    metadata = COALESCE(?, metadata),
    updated_at = ?
WHERE id = ?;
`
	res, err := s.db.ExecContext(ctx, q, string(session.Stage), cart, pending, contact, history, meta, time.Now().UTC(), session.ID)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	return nil
}

func scanSQLiteSession(row rowScanner) (*BotSession, error) {
	var (
		sess        BotSession
		stage       string
		cartJSON    sql.NullString
		pendingJSON sql.NullString
		contactJSON sql.NullString
		historyJSON sql.NullString
		metaJSON    sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.OwnerUserID, &sess.Channel, &sess.ExternalUserID, &stage, &cartJSON, &pendingJSON, &contactJSON, &historyJSON, &metaJSON, &sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Stage = Stage(stage)
	if !sess.Stage.Valid() {
		sess.Stage = StageDiscovering
	}
	if cartJSON.Valid && cartJSON.String != "" {
		if err := json.Unmarshal([]byte(cartJSON.String), &sess.Cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		var pending PendingProducts
		if err := json.Unmarshal([]byte(pendingJSON.String), &pending); err != nil {
			return nil, fmt.Errorf("unmarshal pending products: %w", err)
		}
		sess.PendingProducts = &pending
	}
	if contactJSON.Valid && contactJSON.String != "" {
		if err := json.Unmarshal([]byte(contactJSON.String), &sess.Contact); err != nil {
			return nil, fmt.Errorf("unmarshal contact: %w", err)
		}
	}
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &sess.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if metaJSON.Valid {
		sess.Metadata = fromJSON([]byte(metaJSON.String))
	}
	return &sess, nil
}

// -- Conversations --

func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, ownerUserID, channel, externalUserID string) (*Conversation, error) {
	const q = `
INSERT INTO conversations (id, owner_user_id, channel, external_user_id, last_activity_at, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_user_id, channel, external_user_id) DO UPDATE SET
    owner_user_id = excluded.owner_user_id
RETURNING id, owner_user_id, channel, external_user_id, purchased, episode, last_activity_at, created_at;
`
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, q, randomUUID(), ownerUserID, channel, externalUserID, now, now)
	var c Conversation
	if err := row.Scan(&c.ID, &c.OwnerUserID, &c.Channel, &c.ExternalUserID, &c.Purchased, &c.Episode, &c.LastActivityAt, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET last_activity_at = ? WHERE id = ?;`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) SetConversationPurchased(ctx context.Context, id string, purchased bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET purchased = ? WHERE id = ?;`, purchased, id)
	if err != nil {
		return fmt.Errorf("set conversation purchased: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) AdvanceEpisode(ctx context.Context, id string) error {
	const q = `UPDATE conversations SET episode = episode + 1, purchased = 0 WHERE id = ?;`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("advance episode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// -- Sections --

const sqliteSectionColumns = `id, conversation_id, episode, section_number, purchased, messages_summary, message_count, started_at, closed_at`

func (s *SQLiteStore) GetOpenSection(ctx context.Context, conversationID string) (*ChatSection, error) {
	q := `
SELECT ` + sqliteSectionColumns + `
FROM chat_sections
WHERE conversation_id = ? AND closed_at IS NULL
ORDER BY episode DESC, section_number DESC
LIMIT 1;
`
	return scanSQLiteSection(s.db.QueryRowContext(ctx, q, conversationID))
}

func (s *SQLiteStore) GetOpenSectionByNumber(ctx context.Context, conversationID string, episode, number int) (*ChatSection, error) {
	q := `
SELECT ` + sqliteSectionColumns + `
FROM chat_sections
WHERE conversation_id = ? AND episode = ? AND section_number = ? AND closed_at IS NULL
LIMIT 1;
`
	return scanSQLiteSection(s.db.QueryRowContext(ctx, q, conversationID, episode, number))
}

func (s *SQLiteStore) GetSectionByID(ctx context.Context, id string) (*ChatSection, error) {
	q := `
SELECT ` + sqliteSectionColumns + `
FROM chat_sections
WHERE id = ?
LIMIT 1;
`
	return scanSQLiteSection(s.db.QueryRowContext(ctx, q, id))
}

func (s *SQLiteStore) CreateSection(ctx context.Context, section ChatSection) (*ChatSection, error) {
	startedAt := section.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	episode := section.Episode
	if episode <= 0 {
		episode = 1
	}
	q := `
INSERT INTO chat_sections (id, conversation_id, episode, section_number, purchased, started_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (conversation_id, episode, section_number) DO UPDATE SET
    conversation_id = excluded.conversation_id
RETURNING ` + sqliteSectionColumns + `;
`
	row := s.db.QueryRowContext(ctx, q, randomUUID(), section.ConversationID, episode, section.SectionNumber, section.Purchased, startedAt.UTC())
	return scanSQLiteSection(row)
}

func (s *SQLiteStore) MarkSectionPurchased(ctx context.Context, id string, purchased bool) error {
	const q = `UPDATE chat_sections SET purchased = ? WHERE id = ?;`
	if _, err := s.db.ExecContext(ctx, q, purchased, id); err != nil {
		return fmt.Errorf("mark section purchased: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CloseSectionRecord(ctx context.Context, id string, summary *string, messageCount int, purchased bool, closedAt time.Time) error {
	const q = `
UPDATE chat_sections
SET closed_at = ?,
    messages_summary = ?,
    message_count = ?,
    purchased = ?
WHERE id = ? AND closed_at IS NULL;
`
	if _, err := s.db.ExecContext(ctx, q, closedAt.UTC(), summary, messageCount, purchased, id); err != nil {
		return fmt.Errorf("close section: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListClosedSections(ctx context.Context, conversationID string, limit int) ([]ChatSection, error) {
	if limit <= 0 {
		limit = 5
	}
	q := `
SELECT ` + sqliteSectionColumns + `
FROM chat_sections
WHERE conversation_id = ? AND closed_at IS NOT NULL
ORDER BY closed_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed sections: %w", err)
	}
	defer rows.Close()

	var sections []ChatSection
	for rows.Next() {
		sec, err := scanSQLiteSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, *sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed sections: %w", err)
	}
	return sections, nil
}

func scanSQLiteSection(row rowScanner) (*ChatSection, error) {
	var (
		sec      ChatSection
		summary  sql.NullString
		closedAt sql.NullTime
	)
	if err := row.Scan(&sec.ID, &sec.ConversationID, &sec.Episode, &sec.SectionNumber, &sec.Purchased, &summary, &sec.MessageCount, &sec.StartedAt, &closedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan section: %w", err)
	}
	if summary.Valid {
		sec.MessagesSummary = &summary.String
	}
	if closedAt.Valid {
		t := closedAt.Time
		sec.ClosedAt = &t
	}
	return &sec, nil
}

// -- Messages --

func (s *SQLiteStore) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	const q = `
INSERT INTO chat_messages (id, conversation_id, section_id, role, content, created_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, q, randomUUID(), msg.ConversationID, msg.SectionID, msg.Role, msg.Content, createdAt.UTC()); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]ChatMessage, error) {
	const q = `
SELECT id, conversation_id, section_id, role, content, created_at
FROM chat_messages
WHERE conversation_id = ? AND created_at >= ?
ORDER BY created_at ASC;
`
	rows, err := s.db.QueryContext(ctx, q, conversationID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list messages since: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var (
			m         ChatMessage
			sectionID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &sectionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if sectionID.Valid {
			m.SectionID = &sectionID.String
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) AssignMessagesToSection(ctx context.Context, conversationID, sectionID string, since time.Time) error {
	const q = `
UPDATE chat_messages
SET section_id = ?
WHERE conversation_id = ?
  AND created_at >= ?
  AND (section_id IS NULL OR section_id = ?);
`
	if _, err := s.db.ExecContext(ctx, q, sectionID, conversationID, since.UTC(), sectionID); err != nil {
		return fmt.Errorf("assign messages to section: %w", err)
	}
	return nil
}

// -- Catalog --

func (s *SQLiteStore) SearchProducts(ctx context.Context, ownerUserID, query string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(query) + "%"
	const q = `
SELECT id, owner_user_id, name, category, description, price, stock, created_at, updated_at
FROM products
WHERE owner_user_id = ?
  AND (LOWER(name) LIKE ? OR LOWER(category) LIKE ? OR LOWER(description) LIKE ?)
ORDER BY name ASC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, ownerUserID, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	const q = `
SELECT id, owner_user_id, name, category, description, price, stock, created_at, updated_at
FROM products
WHERE id = ?
LIMIT 1;
`
	row := s.db.QueryRowContext(ctx, q, id)
	var p Product
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) DecrementStock(ctx context.Context, id string, qty int) error {
	const q = `
UPDATE products
SET stock = stock - ?, updated_at = ?
WHERE id = ? AND stock >= ?;
`
	res, err := s.db.ExecContext(ctx, q, qty, time.Now().UTC(), id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insufficient stock for product %s", id)
	}
	return nil
}

// -- Customers --

func (s *SQLiteStore) FindCustomerByChannelID(ctx context.Context, ownerUserID, channel, channelUserID string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = ? AND channel = ? AND channel_user_id = ?
LIMIT 1;
`
	return scanSQLiteCustomer(s.db.QueryRowContext(ctx, q, ownerUserID, channel, channelUserID))
}

func (s *SQLiteStore) FindCustomerByEmail(ctx context.Context, ownerUserID, email string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = ? AND LOWER(email) = LOWER(?)
LIMIT 1;
`
	return scanSQLiteCustomer(s.db.QueryRowContext(ctx, q, ownerUserID, email))
}

func (s *SQLiteStore) FindCustomerByPhone(ctx context.Context, ownerUserID, phone string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = ? AND phone = ?
LIMIT 1;
`
	return scanSQLiteCustomer(s.db.QueryRowContext(ctx, q, ownerUserID, phone))
}

func (s *SQLiteStore) CreateCustomer(ctx context.Context, profile CustomerProfile) (*Customer, error) {
	q := `
INSERT INTO customers (id, owner_user_id, channel, channel_user_id, name, email, phone, address)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + customerColumns + `;
`
	row := s.db.QueryRowContext(ctx, q,
		randomUUID(),
		profile.OwnerUserID,
		nullable(profile.Channel),
		nullable(profile.ChannelUserID),
		nullable(profile.Name),
		nullable(profile.Email),
		nullable(profile.Phone),
		nullable(profile.Address),
	)
	return scanSQLiteCustomer(row)
}

func (s *SQLiteStore) UpdateCustomer(ctx context.Context, id string, profile CustomerProfile) (*Customer, error) {
	q := `
UPDATE customers
SET channel = COALESCE(?, channel),
    channel_user_id = COALESCE(?, channel_user_id),
    name = COALESCE(?, name),
    email = COALESCE(?, email),
    phone = COALESCE(?, phone),
    address = COALESCE(?, address),
    updated_at = ?
WHERE id = ?
RETURNING ` + customerColumns + `;
`
	row := s.db.QueryRowContext(ctx, q,
		nullable(profile.Channel),
		nullable(profile.ChannelUserID),
		nullable(profile.Name),
		nullable(profile.Email),
		nullable(profile.Phone),
		nullable(profile.Address),
		time.Now().UTC(),
		id,
	)
	return scanSQLiteCustomer(row)
}

func scanSQLiteCustomer(row rowScanner) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.OwnerUserID, &c.Channel, &c.ChannelUserID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}

// -- Orders --

func (s *SQLiteStore) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	meta, err := metaJSON(order.Metadata)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO orders (id, owner_user_id, customer_id, order_ref, total, status, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id, owner_user_id, customer_id, order_ref, total, status, metadata, created_at, updated_at;
`
	row := s.db.QueryRowContext(ctx, q,
		randomUUID(),
		order.OwnerUserID,
		order.CustomerID,
		order.OrderRef,
		order.Total,
		order.Status,
		meta,
	)

	var inserted Order
	var rawMeta sql.NullString
	if err := row.Scan(&inserted.ID, &inserted.OwnerUserID, &inserted.CustomerID, &inserted.OrderRef, &inserted.Total, &inserted.Status, &rawMeta, &inserted.CreatedAt, &inserted.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	if rawMeta.Valid {
		inserted.Metadata = fromJSON([]byte(rawMeta.String))
	}
	return &inserted, nil
}

func (s *SQLiteStore) InsertOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	const q = `
INSERT INTO order_items (id, order_id, product_id, name, qty, price)
VALUES (?, ?, ?, ?, ?, ?);
`
	for _, item := range items {
		if _, err := s.db.ExecContext(ctx, q, randomUUID(), item.OrderID, item.ProductID, item.Name, item.Qty, item.Price); err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?;`, id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// -- API Keys --

func (s *SQLiteStore) SyncGeminiKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	const q = `
INSERT INTO api_keys (id, provider, value, priority)
VALUES (?, ?, ?, ?)
ON CONFLICT (provider, value) DO UPDATE
SET priority = excluded.priority,
    updated_at = CURRENT_TIMESTAMP;
`
	for idx, key := range keys {
		if _, err := s.db.ExecContext(ctx, q, randomUUID(), providerGemini, key, idx); err != nil {
			return fmt.Errorf("upsert api key: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListActiveGeminiKeys(ctx context.Context) ([]APIKey, error) {
	const q = `
SELECT id, provider, value, priority, cooldown_until, created_at, updated_at
FROM api_keys
WHERE provider = ?
ORDER BY priority ASC;
`
	rows, err := s.db.QueryContext(ctx, q, providerGemini)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var res []APIKey
	for rows.Next() {
		var (
			k        APIKey
			cooldown sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Provider, &k.Value, &k.Priority, &cooldown, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		if cooldown.Valid {
			t := cooldown.Time
			k.CooldownUntil = &t
		}
		res = append(res, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys rows: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) SetCooldownUntil(ctx context.Context, id string, until time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET cooldown_until = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, until.UTC(), id)
	if err != nil {
		return fmt.Errorf("set cooldown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ClearCooldown(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE api_keys SET cooldown_until = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear cooldown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}
