// Package convo is the dialogue engine: it turns one normalized inbound
// message into at most one reply, moving the session through the four-stage
// machine and keeping conversation memory up to date.
package convo

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"salesbot/internal/cache"
	"salesbot/internal/dedup"
	"salesbot/internal/intent"
	"salesbot/internal/memory"
	"salesbot/internal/metrics"
	"salesbot/internal/order"
	"salesbot/internal/repo"
)

// DefaultDedupTTL is the replay-suppression window for inbound message ids.
const DefaultDedupTTL = 60 * time.Second

const maxHistoryTurns = 20

// Sender delivers a reply to the transport layer for one channel.
type Sender interface {
	SendText(ctx context.Context, channel, destination, text string) error
}

// Inbound is the channel-agnostic shape of one webhook delivery after the
// transport layer has verified and normalized it.
type Inbound struct {
	Channel        string
	ExternalUserID string
	PageOrBotID    string
	MessageID      string
	Text           string
}

// Engine coordinates dedup, section memory, classification, stage handling,
// and persistence for every inbound message.
type Engine struct {
	store      repo.Store
	cache      *cache.Redis
	deduper    dedup.Deduper
	dedupTTL   time.Duration
	sections   *memory.SectionManager
	contexts   *memory.ContextBuilder
	classifier intent.Classifier
	topics     *intent.TopicFilter
	orders     *order.Engine
	sender     Sender
	locks      *sessionLocks
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Options carries the engine's collaborators. Cache is optional; without it
// every catalog search hits the store.
type Options struct {
	Store      repo.Store
	Cache      *cache.Redis
	Deduper    dedup.Deduper
	DedupTTL   time.Duration
	Sections   *memory.SectionManager
	Contexts   *memory.ContextBuilder
	Classifier intent.Classifier
	Topics     *intent.TopicFilter
	Orders     *order.Engine
	Sender     Sender
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// New builds the dialogue engine.
func New(opts Options) *Engine {
	ttl := opts.DedupTTL
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Engine{
		store:      opts.Store,
		cache:      opts.Cache,
		deduper:    opts.Deduper,
		dedupTTL:   ttl,
		sections:   opts.Sections,
		contexts:   opts.Contexts,
		classifier: opts.Classifier,
		topics:     opts.Topics,
		orders:     opts.Orders,
		sender:     opts.Sender,
		locks:      newSessionLocks(),
		logger:     opts.Logger.With("component", "convo"),
		metrics:    opts.Metrics,
	}
}

// HandleMessage processes one inbound delivery end to end. Duplicate
// deliveries inside the dedup window and messages for unknown tenants are
// silent no-ops. Errors returned here are for logging only; the webhook has
// already acked by the time this runs.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) error {
	if in.Text == "" {
		return nil
	}

	key := dedupKey(in)
	if e.deduper.SeenRecently(ctx, key) {
		e.metrics.DuplicateDrops.WithLabelValues(in.Channel).Inc()
		e.logger.Debug("duplicate delivery dropped", "channel", in.Channel, "message_id", in.MessageID)
		return nil
	}
	e.deduper.Remember(ctx, key, e.dedupTTL)

	owner, err := e.store.ResolveOwner(ctx, in.Channel, in.PageOrBotID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.logger.Warn("message for unknown tenant dropped", "channel", in.Channel, "page_or_bot_id", in.PageOrBotID)
			return nil
		}
		return fmt.Errorf("resolve owner: %w", err)
	}
	e.metrics.IncomingMessages.WithLabelValues(in.Channel).Inc()

	conv, err := e.store.GetOrCreateConversation(ctx, owner, in.Channel, in.ExternalUserID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	sectionID := e.rotateSection(ctx, conv)
	e.sections.CancelClose(conv.ID)
	if err := e.store.TouchConversation(ctx, conv.ID, time.Now().UTC()); err != nil {
		e.logger.Warn("touch conversation failed", "error", err)
	}
	e.recordMessage(ctx, conv.ID, sectionID, "user", in.Text)

	t := tenant{OwnerUserID: owner, Channel: in.Channel, ExternalUserID: in.ExternalUserID}
	sessionKey := owner + ":" + in.Channel + ":" + in.ExternalUserID

	// Read the session under the lock, then release it for the LLM calls.
	release := e.locks.acquire(sessionKey)
	session, err := e.store.GetOrCreateSession(ctx, owner, in.Channel, in.ExternalUserID)
	release()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	state := stageState{
		Stage:   session.Stage,
		Cart:    session.Cart,
		Pending: session.PendingProducts,
		Contact: session.Contact,
	}
	if !state.Stage.Valid() {
		state.Stage = repo.StageDiscovering
	}

	var result stageResult
	if e.topics.IsOffTopic(ctx, in.Text) {
		result = stageResult{
			Reply: "I'm here to help you shop. Is there a product I can find for you?",
			State: state,
		}
	} else {
		contextBlock := e.contexts.Build(ctx, conv.ID, in.Text)
		si := e.classifier.Classify(ctx, intent.Input{
			Text:           in.Text,
			Stage:          string(state.Stage),
			LastBotMessage: lastBotTurn(session.History),
			ContextBlock:   contextBlock,
			PendingNames:   pendingNames(state.Pending),
			CartSummary:    formatCart(state.Cart),
			Channel:        in.Channel,
		})
		e.metrics.IntentResults.WithLabelValues(si.Intent, si.Source).Inc()
		result = e.dispatch(ctx, t, state, in.Text, si)
	}

	if result.State.Stage != state.Stage {
		e.metrics.StageTransitions.WithLabelValues(string(state.Stage), string(result.State.Stage)).Inc()
	}

	// Re-acquire and write. Last writer wins on the fields we own.
	release = e.locks.acquire(sessionKey)
	fresh, err := e.store.GetOrCreateSession(ctx, owner, in.Channel, in.ExternalUserID)
	if err == nil {
		fresh.Stage = result.State.Stage
		fresh.Cart = result.State.Cart
		fresh.PendingProducts = result.State.Pending
		fresh.Contact = result.State.Contact
		fresh.History = appendTurns(fresh.History, in.Text, result.Reply)
		err = e.store.SaveSession(ctx, fresh)
	}
	release()
	if err != nil {
		e.metrics.Errors.WithLabelValues("convo").Inc()
		return fmt.Errorf("save session: %w", err)
	}

	if result.Purchased {
		e.markPurchased(ctx, conv.ID, sectionID)
	}

	e.recordMessage(ctx, conv.ID, sectionID, "bot", result.Reply)
	if sectionID != "" {
		e.sections.ScheduleClose(conv.ID, sectionID)
	}

	if err := e.sender.SendText(ctx, in.Channel, in.ExternalUserID, result.Reply); err != nil {
		e.metrics.Errors.WithLabelValues("send").Inc()
		return fmt.Errorf("send reply: %w", err)
	}
	e.metrics.OutgoingMessages.WithLabelValues(in.Channel).Inc()
	return nil
}

// rotateSection applies the authoritative boundary check: close the idled
// section if needed and make sure an open one exists. Failures are logged
// and swallowed so memory problems never block the conversation.
func (e *Engine) rotateSection(ctx context.Context, conv *repo.Conversation) string {
	boundary, err := e.sections.CheckBoundary(ctx, conv)
	if err != nil {
		e.logger.Warn("section boundary check failed", "error", err, "conversation", conv.ID)
		return ""
	}

	if !boundary.ShouldRotate {
		open, err := e.store.GetOpenSection(ctx, conv.ID)
		if err != nil {
			e.logger.Warn("open section lookup failed", "error", err, "conversation", conv.ID)
			return ""
		}
		return open.ID
	}

	if open, err := e.store.GetOpenSection(ctx, conv.ID); err == nil {
		if err := e.sections.CloseSection(ctx, open.ID); err != nil {
			e.logger.Warn("section close failed", "error", err, "section", open.ID)
		}
	}

	// A boundary after a purchase starts the next episode: the purchased
	// flag clears and section numbering restarts at 1.
	if boundary.Episode > conv.Episode {
		if err := e.store.AdvanceEpisode(ctx, conv.ID); err != nil {
			e.logger.Warn("episode advance failed", "error", err, "conversation", conv.ID)
			return ""
		}
		conv.Episode = boundary.Episode
		conv.Purchased = false
	}

	sectionID, err := e.sections.EnsureOpenSection(ctx, conv.ID, boundary.Episode, boundary.NextSectionNumber, false)
	if err != nil {
		e.logger.Warn("section open failed", "error", err, "conversation", conv.ID)
		return ""
	}
	return sectionID
}

// markPurchased flags both the conversation and the open section after a
// completed order so the next boundary resets section numbering.
func (e *Engine) markPurchased(ctx context.Context, conversationID, sectionID string) {
	if err := e.store.SetConversationPurchased(ctx, conversationID, true); err != nil {
		e.logger.Warn("mark conversation purchased failed", "error", err)
	}
	if sectionID != "" {
		if err := e.store.MarkSectionPurchased(ctx, sectionID, true); err != nil {
			e.logger.Warn("mark section purchased failed", "error", err)
		}
	}
}

func (e *Engine) recordMessage(ctx context.Context, conversationID, sectionID, role, content string) {
	if content == "" {
		return
	}
	msg := repo.ChatMessage{ConversationID: conversationID, Role: role, Content: content}
	if sectionID != "" {
		msg.SectionID = &sectionID
	}
	if err := e.store.InsertChatMessage(ctx, msg); err != nil {
		e.logger.Warn("chat message insert failed", "error", err, "role", role)
	}
}

// dedupKey prefers the channel message id; when a channel delivers no id it
// falls back to a digest of sender plus text, which still suppresses rapid
// double-sends.
func dedupKey(in Inbound) string {
	if in.MessageID != "" {
		return in.Channel + ":" + in.MessageID
	}
	sum := sha1.Sum([]byte(in.ExternalUserID + "|" + in.Text))
	return in.Channel + ":fallback:" + hex.EncodeToString(sum[:])
}

func lastBotTurn(history []repo.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "bot" {
			return history[i].Content
		}
	}
	return ""
}

func pendingNames(pending *repo.PendingProducts) []string {
	if pending == nil {
		return nil
	}
	names := make([]string, 0, len(pending.Candidates))
	for _, candidate := range pending.Candidates {
		names = append(names, candidate.Name)
	}
	return names
}

func appendTurns(history []repo.Turn, userText, botText string) []repo.Turn {
	now := time.Now().UTC()
	history = append(history,
		repo.Turn{Role: "user", Content: userText, At: now},
		repo.Turn{Role: "bot", Content: botText, At: now},
	)
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	return history
}
