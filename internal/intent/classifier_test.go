package intent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"salesbot/internal/metrics"
	"salesbot/internal/nlu"
)

type stubLLM struct {
	result *nlu.IntentResult
	err    error
}

func (s *stubLLM) DetectIntent(context.Context, nlu.IntentInput) (*nlu.IntentResult, error) {
	return s.result, s.err
}

func (s *stubLLM) Converse(context.Context, nlu.IntentInput) (*nlu.IntentResult, error) {
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBothStrategiesDegradeIdentically(t *testing.T) {
	llm := &stubLLM{err: errors.New("gemini unreachable")}
	logger := testLogger()
	reg := metrics.Registry("test")
	patterns := NewPatternMatcher()

	in := Input{Text: "iya"}
	strategies := []Classifier{
		NewHybridClassifier(patterns, llm, logger, reg),
		NewUnifiedClassifier(patterns, llm, logger, reg),
	}

	var results []*SalesIntent
	for _, c := range strategies {
		results = append(results, c.Classify(context.Background(), in))
	}

	for i, res := range results {
		if res.Source != "pattern_fallback" {
			t.Fatalf("strategy %d: expected pattern_fallback source, got %s", i, res.Source)
		}
	}
	if results[0].Intent != results[1].Intent {
		t.Fatalf("strategies disagree on intent: %s vs %s", results[0].Intent, results[1].Intent)
	}
	if results[0].Confidence != results[1].Confidence {
		t.Fatalf("strategies disagree on confidence: %.2f vs %.2f", results[0].Confidence, results[1].Confidence)
	}
	if results[0].Confidence >= 0.85 {
		t.Fatalf("expected discounted confidence, got %.2f", results[0].Confidence)
	}
}

func TestHybridPrefersLLMOnAgreement(t *testing.T) {
	llm := &stubLLM{result: &nlu.IntentResult{
		Intent:     IntentConfirm,
		Confidence: 0.7,
		Items:      []nlu.ItemRef{{Name: "Red Shirt", Qty: 2}},
	}}
	c := NewHybridClassifier(NewPatternMatcher(), llm, testLogger(), metrics.Registry("test"))

	res := c.Classify(context.Background(), Input{Text: "yes"})
	if res.Source != "llm" {
		t.Fatalf("expected llm result on agreement, got %s", res.Source)
	}
	if len(res.Items) != 1 || res.Items[0].Name != "Red Shirt" {
		t.Fatalf("expected llm items kept, got %+v", res.Items)
	}
}

func TestHybridDisagreementPicksHigherConfidence(t *testing.T) {
	llm := &stubLLM{result: &nlu.IntentResult{Intent: IntentAddToCart, Confidence: 0.95}}
	c := NewHybridClassifier(NewPatternMatcher(), llm, testLogger(), metrics.Registry("test"))

	// Pattern says confirm at 0.85; the LLM is more confident.
	res := c.Classify(context.Background(), Input{Text: "yes"})
	if res.Intent != IntentAddToCart {
		t.Fatalf("expected add_to_cart, got %s", res.Intent)
	}
}

func TestHybridTieFavoursPatternKeepingLLMFields(t *testing.T) {
	llm := &stubLLM{result: &nlu.IntentResult{
		Intent:     IntentAddToCart,
		Confidence: 0.5,
		Items:      []nlu.ItemRef{{Name: "Blue Mug", Qty: 1}},
	}}
	c := NewHybridClassifier(NewPatternMatcher(), llm, testLogger(), metrics.Registry("test"))

	res := c.Classify(context.Background(), Input{Text: "yes"})
	if res.Intent != IntentConfirm {
		t.Fatalf("expected pattern intent to win, got %s", res.Intent)
	}
	if len(res.Items) != 1 {
		t.Fatal("expected llm items carried over")
	}
}

func TestUnifiedShortCircuitsConfidentPattern(t *testing.T) {
	llm := &stubLLM{err: errors.New("must not be called")}
	c := NewUnifiedClassifier(NewPatternMatcher(), llm, testLogger(), metrics.Registry("test"))

	res := c.Classify(context.Background(), Input{Text: "clear the cart and start over"})
	if res.Intent != IntentCancel {
		t.Fatalf("expected cancel, got %s", res.Intent)
	}
	if res.Source != "pattern" {
		t.Fatalf("expected pattern short-circuit, got %s", res.Source)
	}
}
