package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const (
	recentContextChars  = 300
	factsSectionLimit   = 3
	defaultSearchLimit  = 2
	historyHeaderPrefix = "Earlier in this conversation:"
)

// CustomerFacts are durable observations extracted from purchased sections.
type CustomerFacts struct {
	HasPurchased    bool
	PurchaseCount   int
	PurchaseSummary string
}

// ContextBuilder assembles the bounded grounding block sent with each LLM
// call: customer facts, the latest closed section, and, only when the
// customer refers back to history, a search over older sections.
type ContextBuilder struct {
	store  Store
	logger *slog.Logger
}

// NewContextBuilder returns a builder over the section store.
func NewContextBuilder(store Store, logger *slog.Logger) *ContextBuilder {
	return &ContextBuilder{
		store:  store,
		logger: logger.With("component", "smart_context"),
	}
}

var productLineRegex = regexp.MustCompile(`(?i)(?:bought|ordered|beli|pesan|took|added)\s+([\p{L}\d][\p{L}\d\s\-]{2,40})`)

// ExtractCustomerFacts reads the most recent purchased sections and
// best-effort extracts product-like substrings from their summaries. The
// extraction is pattern-based, not guaranteed exact.
func (b *ContextBuilder) ExtractCustomerFacts(ctx context.Context, conversationID string) (CustomerFacts, error) {
	sections, err := b.store.ListClosedSections(ctx, conversationID, factsSectionLimit*3)
	if err != nil {
		return CustomerFacts{}, err
	}

	var facts CustomerFacts
	var mentions []string
	for _, sec := range sections {
		if !sec.Purchased {
			continue
		}
		facts.HasPurchased = true
		facts.PurchaseCount++
		if facts.PurchaseCount > factsSectionLimit {
			facts.PurchaseCount = factsSectionLimit
			break
		}
		if sec.MessagesSummary == nil {
			continue
		}
		for _, m := range productLineRegex.FindAllStringSubmatch(*sec.MessagesSummary, -1) {
			if len(m) >= 2 {
				mentions = append(mentions, strings.TrimSpace(m[1]))
			}
		}
	}
	facts.PurchaseSummary = strings.Join(dedupeStrings(mentions), ", ")
	return facts, nil
}

// RecentContext returns the tail of the most recent closed section's
// summary. The suffix is kept because recency matters most; nil means there
// is no recent memory.
func (b *ContextBuilder) RecentContext(ctx context.Context, conversationID string) (*string, error) {
	sections, err := b.store.ListClosedSections(ctx, conversationID, 1)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 || sections[0].MessagesSummary == nil {
		return nil, nil
	}

	summary := *sections[0].MessagesSummary
	if len(summary) > recentContextChars {
		summary = "..." + summary[len(summary)-recentContextChars:]
	}
	if sections[0].Purchased {
		summary = "[completed a purchase] " + summary
	}
	return &summary, nil
}

var historyPhrases = []string{
	"last time", "before", "previously", "you mentioned", "you said",
	"my order", "my previous", "earlier", "again", "the same as",
	"kemarin", "sebelumnya", "waktu itu", "pesanan saya", "yang sama",
	"la última vez", "mi pedido", "antes",
}

// DetectHistoryReference reports whether the message refers back to an
// earlier part of the conversation, in any supported language.
func (b *ContextBuilder) DetectHistoryReference(message string) bool {
	text := strings.ToLower(message)
	for _, phrase := range historyPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// SemanticSearch scans closed sections' summaries for the query. The
// current policy is keyword overlap ranked most-recent-first; true vector
// similarity against stored section embeddings is the intended upgrade.
// Bounded to limit sections to cap token cost.
func (b *ContextBuilder) SemanticSearch(ctx context.Context, conversationID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	sections, err := b.store.ListClosedSections(ctx, conversationID, limit*5)
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(query))
	var hits []string
	for _, sec := range sections {
		if sec.MessagesSummary == nil {
			continue
		}
		summary := *sec.MessagesSummary
		lower := strings.ToLower(summary)
		matched := len(tokens) == 0
		for _, tok := range tokens {
			if len(tok) >= 3 && strings.Contains(lower, tok) {
				matched = true
				break
			}
		}
		if matched {
			hits = append(hits, summary)
			if len(hits) >= limit {
				break
			}
		}
	}
	return hits, nil
}

// Build concatenates the context blocks for one message. Empty blocks are
// omitted entirely; the result may be the empty string.
func (b *ContextBuilder) Build(ctx context.Context, conversationID, message string) string {
	var blocks []string

	facts, err := b.ExtractCustomerFacts(ctx, conversationID)
	if err != nil {
		b.logger.Warn("customer fact extraction failed", "error", err)
	} else if facts.HasPurchased {
		profile := "Returning customer"
		if facts.PurchaseSummary != "" {
			profile += "; previously bought: " + facts.PurchaseSummary
		}
		blocks = append(blocks, profile)
	}

	recent, err := b.RecentContext(ctx, conversationID)
	if err != nil {
		b.logger.Warn("recent context lookup failed", "error", err)
	} else if recent != nil {
		blocks = append(blocks, "Recently discussed: "+*recent)
	}

	if b.DetectHistoryReference(message) {
		hits, err := b.SemanticSearch(ctx, conversationID, message, defaultSearchLimit)
		if err != nil {
			b.logger.Warn("history search failed", "error", err)
		} else if len(hits) > 0 {
			blocks = append(blocks, historyHeaderPrefix+"\n"+strings.Join(hits, "\n---\n"))
		}
	}

	return strings.Join(blocks, "\n\n")
}

func dedupeStrings(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
