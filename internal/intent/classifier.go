package intent

import (
	"context"
	"log/slog"

	"salesbot/internal/metrics"
	"salesbot/internal/nlu"
)

// LLM is the slice of the Gemini client the classifiers need.
type LLM interface {
	DetectIntent(ctx context.Context, input nlu.IntentInput) (*nlu.IntentResult, error)
	Converse(ctx context.Context, input nlu.IntentInput) (*nlu.IntentResult, error)
}

// Classifier maps one message to a SalesIntent. Implementations never
// return an error for LLM failures; they degrade to the pattern result.
type Classifier interface {
	Classify(ctx context.Context, in Input) *SalesIntent
}

// fallbackConfidenceScale discounts the pattern confidence when it is used
// only because the LLM was unreachable.
const fallbackConfidenceScale = 0.8

// HybridClassifier runs the pattern matcher and an LLM extraction call and
// merges them under one confidence model. Kept as the legacy path; the
// UnifiedClassifier is the default.
type HybridClassifier struct {
	patterns *PatternMatcher
	llm      LLM
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewHybridClassifier builds the dual-call strategy.
func NewHybridClassifier(patterns *PatternMatcher, llm LLM, logger *slog.Logger, metricRegistry *metrics.Metrics) *HybridClassifier {
	return &HybridClassifier{
		patterns: patterns,
		llm:      llm,
		logger:   logger.With("component", "intent_hybrid"),
		metrics:  metricRegistry,
	}
}

// Classify runs both paths. Agreement prefers the LLM result for its richer
// fields; disagreement picks the higher confidence, with ties going to the
// cheaper deterministic result.
func (c *HybridClassifier) Classify(ctx context.Context, in Input) *SalesIntent {
	patternRes := c.patterns.Classify(in)

	llmRaw, err := c.llm.DetectIntent(ctx, in.nluInput())
	if err != nil {
		c.logger.Warn("llm classification failed, using pattern result", "error", err)
		return degraded(patternRes)
	}
	llmRes := fromNLU(llmRaw)

	merged := merge(patternRes, llmRes)
	c.metrics.IntentResults.WithLabelValues(merged.Intent, merged.Source).Inc()
	return merged
}

// UnifiedClassifier performs intent extraction and reply generation in a
// single LLM call. The pattern matcher still runs first so that obvious
// high-confidence cases skip the network entirely, and so a pattern result
// exists to degrade to.
type UnifiedClassifier struct {
	patterns *PatternMatcher
	llm      LLM
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewUnifiedClassifier builds the single-call strategy.
func NewUnifiedClassifier(patterns *PatternMatcher, llm LLM, logger *slog.Logger, metricRegistry *metrics.Metrics) *UnifiedClassifier {
	return &UnifiedClassifier{
		patterns: patterns,
		llm:      llm,
		logger:   logger.With("component", "intent_unified"),
		metrics:  metricRegistry,
	}
}

// Classify returns the pattern result when it is confident, otherwise one
// unified LLM call supplies intent and reply together.
func (c *UnifiedClassifier) Classify(ctx context.Context, in Input) *SalesIntent {
	patternRes := c.patterns.Classify(in)
	if patternRes.Confidence >= 0.9 {
		c.metrics.IntentResults.WithLabelValues(patternRes.Intent, patternRes.Source).Inc()
		return patternRes
	}

	llmRaw, err := c.llm.Converse(ctx, in.nluInput())
	if err != nil {
		c.logger.Warn("llm classification failed, using pattern result", "error", err)
		return degraded(patternRes)
	}
	llmRes := fromNLU(llmRaw)

	merged := merge(patternRes, llmRes)
	c.metrics.IntentResults.WithLabelValues(merged.Intent, merged.Source).Inc()
	return merged
}

func merge(pattern, llm *SalesIntent) *SalesIntent {
	if pattern.Intent == llm.Intent {
		return llm
	}
	if llm.Confidence > pattern.Confidence {
		return llm
	}
	// Ties favour the deterministic result, but keep the richer extracted
	// fields from the LLM when the pattern has none.
	out := *pattern
	if len(out.Items) == 0 {
		out.Items = llm.Items
	}
	if out.Contact == (Contact{}) {
		out.Contact = llm.Contact
	}
	return &out
}

func degraded(pattern *SalesIntent) *SalesIntent {
	out := *pattern
	out.Confidence = out.Confidence * fallbackConfidenceScale
	out.Source = "pattern_fallback"
	return &out
}
