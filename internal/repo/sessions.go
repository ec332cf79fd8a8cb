package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetOrCreateSession loads the session for the key, creating a fresh
// discovering-stage record on first contact.
func (s *PostgresStore) GetOrCreateSession(ctx context.Context, ownerUserID, channel, externalUserID string) (*BotSession, error) {
	const q = `
INSERT INTO bot_sessions (owner_user_id, channel, external_user_id, stage, cart, conversation_history)
VALUES ($1, $2, $3, 'discovering', '[]', '[]')
ON CONFLICT (owner_user_id, channel, external_user_id) DO UPDATE SET
    updated_at = bot_sessions.updated_at
RETURNING id, owner_user_id, channel, external_user_id, stage, cart, pending_products, contact, conversation_history, metadata, updated_at;
`
	row := s.pool.QueryRow(ctx, q, ownerUserID, channel, externalUserID)
	return scanSession(row)
}

// SaveSession persists the full mutable session state.
func (s *PostgresStore) SaveSession(ctx context.Context, session *BotSession) error {
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
SET stage = $2,
    cart = $3,
    pending_products = $4,
    contact = $5,
    conversation_history = $6,
    metadata = COALESCE($7, metadata),
    updated_at = NOW()
WHERE id = $1;
`
	ct, err := s.pool.Exec(ctx, q, session.ID, string(session.Stage), cart, pending, contact, history, meta)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*BotSession, error) {
	var (
		sess        BotSession
		stage       string
		cartJSON    []byte
		pendingJSON []byte
		contactJSON []byte
		historyJSON []byte
		metaJSON    []byte
	)
	if err := row.Scan(&sess.ID, &sess.OwnerUserID, &sess.Channel, &sess.ExternalUserID, &stage, &cartJSON, &pendingJSON, &contactJSON, &historyJSON, &metaJSON, &sess.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Stage = Stage(stage)
	if !sess.Stage.Valid() {
		sess.Stage = StageDiscovering
	}
	if len(cartJSON) > 0 {
		if err := json.Unmarshal(cartJSON, &sess.Cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	if len(pendingJSON) > 0 {
		var pending PendingProducts
		if err := json.Unmarshal(pendingJSON, &pending); err != nil {
			return nil, fmt.Errorf("unmarshal pending products: %w", err)
		}
		sess.PendingProducts = &pending
	}
	if len(contactJSON) > 0 {
		if err := json.Unmarshal(contactJSON, &sess.Contact); err != nil {
			return nil, fmt.Errorf("unmarshal contact: %w", err)
		}
	}
	if len(historyJSON) > 0 {
		if err := json.Unmarshal(historyJSON, &sess.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	sess.Metadata = fromJSON(metaJSON)
	return &sess, nil
}

func toJSON(val any) (string, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func toJSONNullable(val any) (any, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case *PendingProducts:
		if v == nil {
			return nil, nil
		}
	case map[string]any:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func fromJSON(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"_raw": string(data)}
	}
	return m
}

// TouchConversation bumps the conversation activity clock.
func (s *PostgresStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE conversations SET last_activity_at = $2 WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}
