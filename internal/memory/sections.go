// Package memory maintains the segmented conversation memory: it rotates
// time-bounded sections when a conversation goes idle and assembles the
// bounded grounding context fed to the LLM.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"salesbot/internal/dedup"
	"salesbot/internal/metrics"
	"salesbot/internal/repo"
)

// DefaultInactivityTimeout is how long a section may sit idle before the
// next inbound message rotates it.
const DefaultInactivityTimeout = 5 * time.Minute

const summaryLineLimit = 120

// Store is the persistence slice the section manager needs.
type Store interface {
	GetOpenSection(ctx context.Context, conversationID string) (*repo.ChatSection, error)
	GetOpenSectionByNumber(ctx context.Context, conversationID string, episode, number int) (*repo.ChatSection, error)
	GetSectionByID(ctx context.Context, id string) (*repo.ChatSection, error)
	CreateSection(ctx context.Context, section repo.ChatSection) (*repo.ChatSection, error)
	CloseSectionRecord(ctx context.Context, id string, summary *string, messageCount int, purchased bool, closedAt time.Time) error
	ListClosedSections(ctx context.Context, conversationID string, limit int) ([]repo.ChatSection, error)
	ListMessagesSince(ctx context.Context, conversationID string, since time.Time) ([]repo.ChatMessage, error)
	AssignMessagesToSection(ctx context.Context, conversationID, sectionID string, since time.Time) error
}

// Summarizer condenses a section transcript. Optional; without one the raw
// transcript serves as the summary.
type Summarizer interface {
	SummarizeTranscript(ctx context.Context, transcript string) (string, error)
}

// Boundary is the result of an inactivity check. Episode is the episode the
// next open section belongs to; when it is greater than the conversation's
// current episode the caller must advance the conversation before opening
// the section.
type Boundary struct {
	ShouldRotate      bool
	Episode           int
	NextSectionNumber int
}

// SectionManager rotates and closes conversation sections. Closing is
// idempotent and best-effort: storage errors are logged by callers and must
// never block the conversation.
type SectionManager struct {
	store      Store
	scheduler  dedup.Scheduler
	summarizer Summarizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	now        func() time.Time
}

// NewSectionManager builds a manager with the given inactivity timeout.
// scheduler may be nil to disable the advisory close timers.
func NewSectionManager(store Store, scheduler dedup.Scheduler, logger *slog.Logger, metricRegistry *metrics.Metrics, timeout time.Duration) *SectionManager {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &SectionManager{
		store:     store,
		scheduler: scheduler,
		logger:    logger.With("component", "sections"),
		metrics:   metricRegistry,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetSummarizer installs the LLM transcript summarizer. Summarisation
// failures fall back to the raw transcript.
func (m *SectionManager) SetSummarizer(s Summarizer) {
	m.summarizer = s
}

// CheckBoundary decides whether the open section must rotate because the
// conversation idled past the timeout, and where the next section lives. A
// completed purchase ends the episode: the boundary moves to the next
// episode and numbering restarts at 1.
func (m *SectionManager) CheckBoundary(ctx context.Context, conv *repo.Conversation) (Boundary, error) {
	episode := conv.Episode
	if episode <= 0 {
		episode = 1
	}

	open, err := m.store.GetOpenSection(ctx, conv.ID)
	if err != nil {
		if err == repo.ErrNotFound {
			if conv.Purchased {
				return Boundary{ShouldRotate: true, Episode: episode + 1, NextSectionNumber: 1}, nil
			}
			next := 1
			if closed, cerr := m.store.ListClosedSections(ctx, conv.ID, 1); cerr == nil && len(closed) > 0 && closed[0].Episode == episode {
				next = closed[0].SectionNumber + 1
			}
			return Boundary{ShouldRotate: true, Episode: episode, NextSectionNumber: next}, nil
		}
		return Boundary{}, fmt.Errorf("check boundary: %w", err)
	}

	idle := m.now().Sub(conv.LastActivityAt)
	if idle < m.timeout {
		return Boundary{ShouldRotate: false, Episode: open.Episode, NextSectionNumber: open.SectionNumber}, nil
	}

	if conv.Purchased {
		return Boundary{ShouldRotate: true, Episode: episode + 1, NextSectionNumber: 1}, nil
	}
	return Boundary{ShouldRotate: true, Episode: open.Episode, NextSectionNumber: open.SectionNumber + 1}, nil
}

// CloseSection gathers the section's messages, links unassigned ones, and
// writes the terminal state in one update. Closing an already-closed
// section is a no-op; a section with zero messages closes with a nil
// summary.
func (m *SectionManager) CloseSection(ctx context.Context, sectionID string) error {
	section, err := m.store.GetSectionByID(ctx, sectionID)
	if err != nil {
		return fmt.Errorf("load section: %w", err)
	}
	if section.ClosedAt != nil {
		return nil
	}

	msgs, err := m.store.ListMessagesSince(ctx, section.ConversationID, section.StartedAt)
	if err != nil {
		return fmt.Errorf("list section messages: %w", err)
	}

	// Keep only messages unassigned or already tagged to this section;
	// messages tagged to other sections belong to them.
	kept := msgs[:0]
	for _, msg := range msgs {
		if msg.SectionID == nil || *msg.SectionID == section.ID {
			kept = append(kept, msg)
		}
	}

	var summary *string
	if len(kept) > 0 {
		if err := m.store.AssignMessagesToSection(ctx, section.ConversationID, section.ID, section.StartedAt); err != nil {
			return fmt.Errorf("assign section messages: %w", err)
		}
		text := m.summarize(ctx, buildTranscriptSummary(kept))
		summary = &text
	}

	if err := m.store.CloseSectionRecord(ctx, section.ID, summary, len(kept), section.Purchased, m.now()); err != nil {
		return err
	}
	m.metrics.SectionsClosed.Inc()
	m.logger.Info("section closed", "section", section.ID, "number", section.SectionNumber, "messages", len(kept))
	return nil
}

// EnsureOpenSection gets or creates the open section at (conversationID,
// episode, number) and returns its id. Closed sections from earlier
// episodes are never reused.
func (m *SectionManager) EnsureOpenSection(ctx context.Context, conversationID string, episode, number int, purchased bool) (string, error) {
	if existing, err := m.store.GetOpenSectionByNumber(ctx, conversationID, episode, number); err == nil {
		return existing.ID, nil
	} else if err != repo.ErrNotFound {
		return "", fmt.Errorf("lookup section: %w", err)
	}

	created, err := m.store.CreateSection(ctx, repo.ChatSection{
		ConversationID: conversationID,
		Episode:        episode,
		SectionNumber:  number,
		Purchased:      purchased,
		StartedAt:      m.now(),
	})
	if err != nil {
		return "", fmt.Errorf("create section: %w", err)
	}
	return created.ID, nil
}

// ScheduleClose arms an advisory timer to close the section after the
// inactivity window. The timer is an optimization only; the authoritative
// check is CheckBoundary on the next inbound message.
func (m *SectionManager) ScheduleClose(conversationID, sectionID string) {
	if m.scheduler == nil {
		return
	}
	m.scheduler.ScheduleOnce("section:"+conversationID, m.timeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.CloseSection(ctx, sectionID); err != nil {
			m.logger.Warn("advisory section close failed", "error", err, "section", sectionID)
		}
	})
}

// CancelClose cancels any pending advisory timer for the conversation.
func (m *SectionManager) CancelClose(conversationID string) {
	if m.scheduler == nil {
		return
	}
	m.scheduler.Cancel("section:" + conversationID)
}

// Timeout exposes the configured inactivity window.
func (m *SectionManager) Timeout() time.Duration {
	return m.timeout
}

// summarize condenses the transcript through the LLM when a summarizer is
// installed, falling back to the transcript itself on failure.
func (m *SectionManager) summarize(ctx context.Context, transcript string) string {
	if m.summarizer == nil || transcript == "" {
		return transcript
	}
	condensed, err := m.summarizer.SummarizeTranscript(ctx, transcript)
	if err != nil || strings.TrimSpace(condensed) == "" {
		if err != nil {
			m.logger.Warn("transcript summarisation failed, keeping transcript", "error", err)
		}
		return transcript
	}
	return strings.TrimSpace(condensed)
}

func buildTranscriptSummary(msgs []repo.ChatMessage) string {
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		content := strings.TrimSpace(msg.Content)
		if len(content) > summaryLineLimit {
			content = content[:summaryLineLimit] + "..."
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}
