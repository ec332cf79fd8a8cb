package intent

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
)

// TopicChecker is the LLM topic classifier consulted for ambiguous
// messages.
type TopicChecker interface {
	CheckTopic(ctx context.Context, message string) (onTopic bool, confidence float64, err error)
}

// TopicFilter decides whether a message belongs to the shopping
// conversation at all. It runs before intent extraction so off-topic turns
// never corrupt cart or contact state.
type TopicFilter struct {
	checker   TopicChecker
	logger    *slog.Logger
	threshold float64
}

// NewTopicFilter builds the prefilter. checker may be nil, in which case
// only the cheap pattern check runs.
func NewTopicFilter(checker TopicChecker, logger *slog.Logger) *TopicFilter {
	return &TopicFilter{
		checker:   checker,
		logger:    logger.With("component", "topic_filter"),
		threshold: 0.6,
	}
}

var offTopicMarkers = []string{
	"tell me a joke", "joke", "politics", "election", "president",
	"write an essay", "write a poem", "homework", "capital of",
	"ceritakan lelucon", "politik", "buatkan puisi",
}

var commerceMarkers = []string{
	"buy", "price", "cost", "order", "cart", "product", "deliver", "ship",
	"stock", "cheap", "discount", "pay",
	"beli", "harga", "pesan", "keranjang", "produk", "kirim", "stok", "murah", "bayar",
	"comprar", "precio", "pedido",
}

// IsOffTopic reports whether the message should be redirected instead of
// classified. Obvious cases are decided by patterns; ambiguous ones go to
// the LLM topic classifier, and any LLM failure counts as on-topic so the
// conversation is never blocked.
func (f *TopicFilter) IsOffTopic(ctx context.Context, message string) bool {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return false
	}

	for _, marker := range commerceMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	for _, marker := range offTopicMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	if isArithmetic(text) {
		return true
	}
	// Short messages (bare "yes", a product name, a phone number) are
	// resolved by stage context later; only long prose is worth an LLM check.
	if len(text) < 40 || f.checker == nil {
		return false
	}

	onTopic, confidence, err := f.checker.CheckTopic(ctx, message)
	if err != nil {
		f.logger.Debug("topic check failed, assuming on-topic", "error", err)
		return false
	}
	return !onTopic && confidence > f.threshold
}

// isArithmetic catches messages like "what is 17 * 34" that are clearly a
// calculator request, not a purchase.
func isArithmetic(text string) bool {
	hasDigit := false
	hasOperator := false
	for _, r := range text {
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if r == '+' || r == '*' || r == '/' || r == '=' {
			hasOperator = true
		}
	}
	return hasDigit && hasOperator
}
