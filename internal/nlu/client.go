package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"salesbot/internal/metrics"
	"salesbot/internal/repo"

	"log/slog"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

var (
	errQuotaExceeded = errors.New("gemini quota exceeded")
	errUnauthorised  = errors.New("gemini unauthorised")
)

// KeyStore provides rotating API keys with cooldown bookkeeping.
type KeyStore interface {
	ListActiveGeminiKeys(ctx context.Context) ([]repo.APIKey, error)
	SetCooldownUntil(ctx context.Context, id string, until time.Time) error
}

// Client communicates with the Gemini API to perform intent extraction,
// reply generation, and topic checks.
type Client struct {
	keys        KeyStore
	logger      *slog.Logger
	metrics     *metrics.Metrics
	httpClient  *http.Client
	model       string
	timeout     time.Duration
	cooldown    time.Duration
	keyCacheTTL time.Duration

	mu       sync.Mutex
	cachedAt time.Time
	cached   []repo.APIKey
}

// Config holds NLU client configuration.
type Config struct {
	Model    string
	Timeout  time.Duration
	Cooldown time.Duration
}

// New creates a Gemini client.
func New(keys KeyStore, logger *slog.Logger, metricRegistry *metrics.Metrics, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		keys:        keys,
		logger:      logger.With("component", "nlu"),
		metrics:     metricRegistry,
		httpClient:  &http.Client{Timeout: timeout},
		model:       cfg.Model,
		timeout:     timeout,
		cooldown:    cfg.Cooldown,
		keyCacheTTL: 1 * time.Minute,
	}
}

// IntentInput represents the information sent to Gemini to infer user intent.
type IntentInput struct {
	UserMessage    string
	Stage          string
	LastBotMessage string
	ContextBlock   string
	PendingNames   []string
	CartSummary    string
	Channel        string
}

// ItemRef is one product mention extracted from the message.
type ItemRef struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

// ContactFields carries contact details extracted from the message. Empty
// string means the field was not mentioned.
type ContactFields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// IntentResult contains the structured response from Gemini.
type IntentResult struct {
	Intent     string        `json:"intent"`
	Confidence float64       `json:"confidence"`
	Reply      string        `json:"reply"`
	Items      []ItemRef     `json:"items"`
	Contact    ContactFields `json:"contact"`
}

type callResult struct {
	text string
	key  string
	err  error
}

// DetectIntent analyses a message and returns structured intent data without
// generating a customer-facing reply.
func (c *Client) DetectIntent(ctx context.Context, input IntentInput) (*IntentResult, error) {
	return c.classify(ctx, input, false)
}

// Converse performs intent extraction and reply generation in a single call.
// This halves latency and cost versus DetectIntent followed by a second
// generation call.
func (c *Client) Converse(ctx context.Context, input IntentInput) (*IntentResult, error) {
	return c.classify(ctx, input, true)
}

func (c *Client) classify(ctx context.Context, input IntentInput, withReply bool) (*IntentResult, error) {
	payload := buildIntentPrompt(input, withReply)

	res, keyUsed, err := c.callGemini(ctx, payload)
	if err != nil {
		return nil, err
	}
	c.metrics.GeminiRequests.WithLabelValues("success").Inc()

	normalised := normaliseJSON(res)

	var result IntentResult
	if err := json.Unmarshal([]byte(normalised), &result); err != nil {
		// Try to salvage partially truncated JSON before giving up.
		if partial, perr := fallbackParseIntent(normalised); perr == nil && partial != nil {
			c.logger.Debug("intent detected via fallback", "intent", partial.Intent, "confidence", partial.Confidence, "key", keyUsed)
			return partial, nil
		}
		if partial, perr := fallbackParseIntent(res); perr == nil && partial != nil {
			c.logger.Debug("intent detected via fallback(raw)", "intent", partial.Intent, "confidence", partial.Confidence, "key", keyUsed)
			return partial, nil
		}
		c.metrics.Errors.WithLabelValues("nlu").Inc()
		snippet := res
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("parse intent json: %w (snippet=%q)", err, snippet)
	}

	c.logger.Debug("intent detected", "intent", result.Intent, "confidence", result.Confidence, "key", keyUsed)
	return &result, nil
}

// SummarizeTranscript condenses a closed section's transcript into a few
// lines for later context retrieval, keeping product names, quantities,
// contact details, and whether a purchase completed.
func (c *Client) SummarizeTranscript(ctx context.Context, transcript string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize this sales chat transcript in at most 3 short lines. ")
	sb.WriteString("Keep product names, quantities, prices, contact details, and whether an order was placed. ")
	sb.WriteString("Answer in the transcript's language, plain text only, no preamble.\n\n")
	sb.WriteString("Transcript:\n")
	sb.WriteString(transcript)

	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: sb.String()}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 256,
		},
	}

	res, _, err := c.callGemini(ctx, payload)
	if err != nil {
		return "", err
	}
	c.metrics.GeminiRequests.WithLabelValues("success").Inc()
	return strings.TrimSpace(res), nil
}

// CheckTopic asks Gemini whether a message is about shopping. Used only
// when the cheap pattern prefilter is undecided.
func (c *Client) CheckTopic(ctx context.Context, message string) (onTopic bool, confidence float64, err error) {
	var sb strings.Builder
	sb.WriteString("You are a topic filter for a shopping assistant. ")
	sb.WriteString("Decide whether the user message is about shopping: browsing or buying products, carts, orders, prices, delivery, or contact details for an order. ")
	sb.WriteString("The message may be in any language. ")
	sb.WriteString("Reply with a single JSON object and nothing else: {\"on_topic\":true,\"confidence\":0.0}\n\n")
	sb.WriteString("Message:\n")
	sb.WriteString(message)

	payload := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: sb.String()}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.1,
			MaxOutputTokens: 64,
		},
	}

	res, _, err := c.callGemini(ctx, payload)
	if err != nil {
		return false, 0, err
	}
	c.metrics.GeminiRequests.WithLabelValues("success").Inc()

	var verdict struct {
		OnTopic    bool    `json:"on_topic"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(normaliseJSON(res)), &verdict); err != nil {
		return false, 0, fmt.Errorf("parse topic json: %w", err)
	}
	return verdict.OnTopic, verdict.Confidence, nil
}

func buildIntentPrompt(input IntentInput, withReply bool) geminiRequest {
	var sb strings.Builder
	sb.WriteString("You are the sales assistant of an online shop chatting with a customer. ")
	sb.WriteString("Classify the customer's intent and extract any products or contact details mentioned. ")
	sb.WriteString("The message may be in any language; do not translate, infer the intent directly. ")
	sb.WriteString("Answer with exactly one valid JSON object, no extra text.\n\n")
	sb.WriteString("Format:\n")
	sb.WriteString(`{"intent":"string","confidence":0.0,"reply":"string","items":[{"name":"string","qty":1}],"contact":{"name":"","email":"","phone":"","address":""}}` + "\n\n")
	sb.WriteString("Intents: greeting, browse, add_to_cart, modify_cart, order, confirm, cancel, provide_contact, ask_question, off_topic, unknown.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- browse: the customer is looking for or asking about products; put the query in items[0].name.\n")
	sb.WriteString("- add_to_cart: the customer wants specific products; list each with qty (default 1).\n")
	sb.WriteString("- modify_cart: quantity changes or removals; qty 0 means remove.\n")
	sb.WriteString("- order: the customer wants to check out what is in the cart.\n")
	sb.WriteString("- confirm / cancel: plain agreement or refusal to whatever the assistant last asked.\n")
	sb.WriteString("- provide_contact: the message contains a name, phone, email, or delivery address; fill the contact fields you find, leave the rest empty.\n")
	sb.WriteString("- A bare \"yes\" right after the assistant recommended a product means add_to_cart of that product.\n")
	sb.WriteString("- Use intent \"unknown\" with low confidence when unsure.\n")
	if withReply {
		sb.WriteString("- Fill \"reply\" with a short, friendly answer in the customer's language that moves the sale forward.\n")
	} else {
		sb.WriteString("- Leave \"reply\" empty.\n")
	}
	sb.WriteString("\nConversation state:\n")
	sb.WriteString("- Stage: " + input.Stage + "\n")
	if input.LastBotMessage != "" {
		sb.WriteString("- Last assistant message: " + input.LastBotMessage + "\n")
	}
	if len(input.PendingNames) > 0 {
		sb.WriteString("- Product options just offered: " + strings.Join(input.PendingNames, "; ") + "\n")
	}
	if input.CartSummary != "" {
		sb.WriteString("- Cart: " + input.CartSummary + "\n")
	}
	if input.ContextBlock != "" {
		sb.WriteString("- Background:\n" + input.ContextBlock + "\n")
	}
	sb.WriteString("\nCustomer message:\n")
	sb.WriteString(input.UserMessage)

	return geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: sb.String()}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.3,
			MaxOutputTokens: 512,
			TopP:            0.8,
		},
	}
}

func (c *Client) callGemini(ctx context.Context, payload geminiRequest) (string, string, error) {
	var lastErr error

	keys, err := c.fetchKeys(ctx)
	if err != nil {
		return "", "", err
	}

	for _, k := range keys {
		if k.CooldownUntil != nil && time.Now().Before(*k.CooldownUntil) {
			continue
		}

		res := c.invokeWithKey(ctx, k, payload)
		if res.err == nil {
			return res.text, res.key, nil
		}
		lastErr = res.err

		if errors.Is(res.err, errQuotaExceeded) || errors.Is(res.err, errUnauthorised) {
			if err := c.keys.SetCooldownUntil(ctx, k.ID, time.Now().Add(c.cooldown)); err != nil {
				c.logger.Error("set cooldown failed", "error", err, "key", k.ID)
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no available gemini keys")
	}
	c.metrics.GeminiRequests.WithLabelValues("failed").Inc()
	return "", "", lastErr
}

func (c *Client) invokeWithKey(ctx context.Context, key repo.APIKey, payload geminiRequest) callResult {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return callResult{err: fmt.Errorf("marshal payload: %w", err)}
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiAPIBase, c.model, key.Value)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return callResult{err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeminiRequests.WithLabelValues("error").Inc()
		return callResult{err: fmt.Errorf("gemini http: %w", err)}
	}
	defer resp.Body.Close()

	latency := time.Since(start).Seconds()
	statusLabel := fmt.Sprintf("%d", resp.StatusCode)
	c.metrics.GeminiLatency.WithLabelValues(statusLabel).Observe(latency)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return callResult{err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode == http.StatusOK {
		text, err := extractCandidateText(body)
		if err != nil {
			return callResult{err: err}
		}
		return callResult{text: text, key: key.ID}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return callResult{err: errQuotaExceeded}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return callResult{err: errUnauthorised}
	}

	return callResult{err: fmt.Errorf("gemini request failed: status=%d body=%s", resp.StatusCode, string(body))}
}

func (c *Client) fetchKeys(ctx context.Context) ([]repo.APIKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cached) > 0 && time.Since(c.cachedAt) < c.keyCacheTTL {
		return c.cached, nil
	}

	keys, err := c.keys.ListActiveGeminiKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("gemini keys not found")
	}

	c.cached = keys
	c.cachedAt = time.Now()
	return keys, nil
}

func extractCandidateText(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no candidate text found")
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            float64 `json:"topK,omitempty"`
	MaxOutputTokens int32   `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
