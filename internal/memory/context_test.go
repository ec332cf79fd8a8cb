package memory

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"salesbot/internal/repo"
)

func closedSection(store *fakeStore, conversationID string, number int, purchased bool, summary string, closedAt time.Time) {
	store.nextID++
	id := "ctx-" + strings.Repeat("x", store.nextID)
	var sum *string
	if summary != "" {
		sum = &summary
	}
	store.sections[id] = &repo.ChatSection{
		ID:              id,
		ConversationID:  conversationID,
		SectionNumber:   number,
		Purchased:       purchased,
		MessagesSummary: sum,
		StartedAt:       closedAt.Add(-time.Hour),
		ClosedAt:        &closedAt,
	}
}

func TestExtractCustomerFacts(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	closedSection(store, "c1", 1, true, "user: I want a mug\nbot: ok\nuser: ordered Blue Mug", now.Add(-2*time.Hour))
	closedSection(store, "c1", 2, false, "user: just browsing", now.Add(-time.Hour))

	b := NewContextBuilder(store, discardLogger())
	facts, err := b.ExtractCustomerFacts(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !facts.HasPurchased || facts.PurchaseCount != 1 {
		t.Fatalf("expected one purchase, got %+v", facts)
	}
	if !strings.Contains(facts.PurchaseSummary, "Blue Mug") {
		t.Fatalf("expected product mention, got %q", facts.PurchaseSummary)
	}
}

func TestRecentContextTruncatesAndMarksPurchase(t *testing.T) {
	store := newFakeStore()
	long := strings.Repeat("user: talking about shirts and mugs\n", 20)
	closedSection(store, "c1", 1, true, long, time.Now())

	b := NewContextBuilder(store, discardLogger())
	recent, err := b.RecentContext(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recent == nil {
		t.Fatal("expected recent context")
	}
	if !strings.HasPrefix(*recent, "[completed a purchase] ...") {
		t.Fatalf("expected purchase marker and truncation prefix, got %q", (*recent)[:40])
	}
}

func TestRecentContextNilWithoutHistory(t *testing.T) {
	b := NewContextBuilder(newFakeStore(), discardLogger())
	recent, err := b.RecentContext(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recent != nil {
		t.Fatal("expected nil recent context for a fresh conversation")
	}
}

func TestDetectHistoryReference(t *testing.T) {
	b := NewContextBuilder(newFakeStore(), discardLogger())
	if !b.DetectHistoryReference("the same as my order last time") {
		t.Fatal("history phrase not detected")
	}
	if b.DetectHistoryReference("do you have red shirts") {
		t.Fatal("plain discovery flagged as history reference")
	}
}

func TestSemanticSearchMostRecentFirst(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	closedSection(store, "c1", 1, false, "user: asked about shirts", now.Add(-3*time.Hour))
	closedSection(store, "c1", 2, false, "user: asked about mugs", now.Add(-2*time.Hour))
	closedSection(store, "c1", 3, false, "user: asked about shirts again", now.Add(-time.Hour))

	b := NewContextBuilder(store, discardLogger())
	hits, err := b.SemanticSearch(context.Background(), "c1", "shirts", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if !strings.Contains(hits[0], "again") {
		t.Fatalf("expected most recent hit first, got %q", hits[0])
	}
}

func TestBuildOmitsEmptyBlocks(t *testing.T) {
	b := NewContextBuilder(newFakeStore(), discardLogger())
	if got := b.Build(context.Background(), "c1", "hello"); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
