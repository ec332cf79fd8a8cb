package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateConversation loads the chat thread for the key, creating it on
// first contact.
func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, ownerUserID, channel, externalUserID string) (*Conversation, error) {
	const q = `
INSERT INTO conversations (owner_user_id, channel, external_user_id, last_activity_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (owner_user_id, channel, external_user_id) DO UPDATE SET
    owner_user_id = EXCLUDED.owner_user_id
RETURNING id, owner_user_id, channel, external_user_id, purchased, episode, last_activity_at, created_at;
`
	row := s.pool.QueryRow(ctx, q, ownerUserID, channel, externalUserID)
	var c Conversation
	if err := row.Scan(&c.ID, &c.OwnerUserID, &c.Channel, &c.ExternalUserID, &c.Purchased, &c.Episode, &c.LastActivityAt, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return &c, nil
}

// SetConversationPurchased flips the purchase marker on the conversation.
func (s *PostgresStore) SetConversationPurchased(ctx context.Context, id string, purchased bool) error {
	const q = `UPDATE conversations SET purchased = $2 WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id, purchased)
	if err != nil {
		return fmt.Errorf("set conversation purchased: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// AdvanceEpisode starts the next purchase episode: the episode counter
// increments and the purchased marker clears in one update, so the post-
// purchase reset is applied exactly once.
func (s *PostgresStore) AdvanceEpisode(ctx context.Context, id string) error {
	const q = `UPDATE conversations SET episode = episode + 1, purchased = FALSE WHERE id = $1;`
	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("advance episode: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

const sectionColumns = `id, conversation_id, episode, section_number, purchased, messages_summary, message_count, started_at, closed_at`

// GetOpenSection returns the single section without a closed_at, or
// ErrNotFound when every section is closed.
func (s *PostgresStore) GetOpenSection(ctx context.Context, conversationID string) (*ChatSection, error) {
	const q = `
SELECT ` + sectionColumns + `
FROM chat_sections
WHERE conversation_id = $1 AND closed_at IS NULL
ORDER BY episode DESC, section_number DESC
LIMIT 1;
`
	return s.scanSectionRow(s.pool.QueryRow(ctx, q, conversationID))
}

// GetOpenSectionByNumber returns the still-open section with the given
// episode and number. Closed sections never match: a rotation that reuses a
// number from an earlier episode must create a fresh row.
func (s *PostgresStore) GetOpenSectionByNumber(ctx context.Context, conversationID string, episode, number int) (*ChatSection, error) {
	const q = `
SELECT ` + sectionColumns + `
FROM chat_sections
WHERE conversation_id = $1 AND episode = $2 AND section_number = $3 AND closed_at IS NULL
LIMIT 1;
`
	return s.scanSectionRow(s.pool.QueryRow(ctx, q, conversationID, episode, number))
}

// GetSectionByID returns a section by primary key.
func (s *PostgresStore) GetSectionByID(ctx context.Context, id string) (*ChatSection, error) {
	const q = `
SELECT ` + sectionColumns + `
FROM chat_sections
WHERE id = $1
LIMIT 1;
`
	return s.scanSectionRow(s.pool.QueryRow(ctx, q, id))
}

// CreateSection inserts a new open section. A concurrent create of the same
// (conversation, episode, number) resolves to the row that won.
func (s *PostgresStore) CreateSection(ctx context.Context, section ChatSection) (*ChatSection, error) {
	const q = `
INSERT INTO chat_sections (conversation_id, episode, section_number, purchased, started_at)
VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
ON CONFLICT (conversation_id, episode, section_number) DO UPDATE SET
    conversation_id = EXCLUDED.conversation_id
RETURNING ` + sectionColumns + `;
`
	episode := section.Episode
	if episode <= 0 {
		episode = 1
	}
	var startedAt any
	if !section.StartedAt.IsZero() {
		startedAt = section.StartedAt
	}
	return s.scanSectionRow(s.pool.QueryRow(ctx, q, section.ConversationID, episode, section.SectionNumber, section.Purchased, startedAt))
}

// MarkSectionPurchased flags a still-open section after a completed order.
func (s *PostgresStore) MarkSectionPurchased(ctx context.Context, id string, purchased bool) error {
	const q = `
UPDATE chat_sections
SET purchased = $2
WHERE id = $1;
`
	if _, err := s.pool.Exec(ctx, q, id, purchased); err != nil {
		return fmt.Errorf("mark section purchased: %w", err)
	}
	return nil
}

// CloseSectionRecord writes the terminal state of a section in one update.
// Closing an already-closed section leaves it untouched.
func (s *PostgresStore) CloseSectionRecord(ctx context.Context, id string, summary *string, messageCount int, purchased bool, closedAt time.Time) error {
	const q = `
UPDATE chat_sections
SET closed_at = $2,
    messages_summary = $3,
    message_count = $4,
    purchased = $5
WHERE id = $1 AND closed_at IS NULL;
`
	if _, err := s.pool.Exec(ctx, q, id, closedAt, summary, messageCount, purchased); err != nil {
		return fmt.Errorf("close section: %w", err)
	}
	return nil
}

// ListClosedSections returns the most recently closed sections first.
func (s *PostgresStore) ListClosedSections(ctx context.Context, conversationID string, limit int) ([]ChatSection, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT ` + sectionColumns + `
FROM chat_sections
WHERE conversation_id = $1 AND closed_at IS NOT NULL
ORDER BY closed_at DESC
LIMIT $2;
`
	rows, err := s.pool.Query(ctx, q, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list closed sections: %w", err)
	}
	defer rows.Close()

	var sections []ChatSection
	for rows.Next() {
		var sec ChatSection
		if err := rows.Scan(&sec.ID, &sec.ConversationID, &sec.Episode, &sec.SectionNumber, &sec.Purchased, &sec.MessagesSummary, &sec.MessageCount, &sec.StartedAt, &sec.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan closed section: %w", err)
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate closed sections: %w", err)
	}
	return sections, nil
}

// InsertChatMessage stores a conversation message for section bookkeeping.
func (s *PostgresStore) InsertChatMessage(ctx context.Context, msg ChatMessage) error {
	const q = `
INSERT INTO chat_messages (conversation_id, section_id, role, content)
VALUES ($1, $2, $3, $4);
`
	if _, err := s.pool.Exec(ctx, q, msg.ConversationID, msg.SectionID, msg.Role, msg.Content); err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListMessagesSince returns messages created at or after the given time,
// oldest first.
func (s *PostgresStore) ListMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]ChatMessage, error) {
	const q = `
SELECT id, conversation_id, section_id, role, content, created_at
FROM chat_messages
WHERE conversation_id = $1 AND created_at >= $2
ORDER BY created_at ASC;
`
	rows, err := s.pool.Query(ctx, q, conversationID, since)
	if err != nil {
		return nil, fmt.Errorf("list messages since: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SectionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// AssignMessagesToSection links unassigned messages from the window to the
// section being closed.
func (s *PostgresStore) AssignMessagesToSection(ctx context.Context, conversationID, sectionID string, since time.Time) error {
	const q = `
UPDATE chat_messages
SET section_id = $2
WHERE conversation_id = $1
  AND created_at >= $3
  AND (section_id IS NULL OR section_id = $2);
`
	if _, err := s.pool.Exec(ctx, q, conversationID, sectionID, since); err != nil {
		return fmt.Errorf("assign messages to section: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanSectionRow(row rowScanner) (*ChatSection, error) {
	var sec ChatSection
	if err := row.Scan(&sec.ID, &sec.ConversationID, &sec.Episode, &sec.SectionNumber, &sec.Purchased, &sec.MessagesSummary, &sec.MessageCount, &sec.StartedAt, &sec.ClosedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan section: %w", err)
	}
	return &sec, nil
}
