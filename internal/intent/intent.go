// Package intent classifies inbound customer messages. A deterministic
// pattern matcher handles the obvious cases for free; a Gemini call covers
// the rest. Two strategies combine them: the legacy dual-call hybrid and the
// default unified single-call mode.
package intent

import "salesbot/internal/nlu"

// Intent names produced by both the pattern matcher and the LLM.
const (
	IntentGreeting       = "greeting"
	IntentBrowse         = "browse"
	IntentAddToCart      = "add_to_cart"
	IntentModifyCart     = "modify_cart"
	IntentOrder          = "order"
	IntentConfirm        = "confirm"
	IntentCancel         = "cancel"
	IntentProvideContact = "provide_contact"
	IntentAskQuestion    = "ask_question"
	IntentOffTopic       = "off_topic"
	IntentUnknown        = "unknown"
)

// Item is one product mention with a quantity. Qty 0 on a modify_cart
// intent means removal.
type Item struct {
	Name string
	Qty  int
}

// Contact carries contact fields extracted from a message; empty string
// means the field was not mentioned.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// SalesIntent is the ephemeral classification result for one message. It is
// produced fresh per message and never persisted.
type SalesIntent struct {
	Intent     string
	Items      []Item
	Contact    Contact
	Confidence float64
	Reply      string
	// Source records which path produced the result: "pattern", "llm", or
	// "pattern_fallback" when the LLM was unreachable.
	Source string
}

// Input is everything a classifier may use for one message.
type Input struct {
	Text           string
	Stage          string
	LastBotMessage string
	ContextBlock   string
	PendingNames   []string
	CartSummary    string
	Channel        string
}

func (in Input) nluInput() nlu.IntentInput {
	return nlu.IntentInput{
		UserMessage:    in.Text,
		Stage:          in.Stage,
		LastBotMessage: in.LastBotMessage,
		ContextBlock:   in.ContextBlock,
		PendingNames:   in.PendingNames,
		CartSummary:    in.CartSummary,
		Channel:        in.Channel,
	}
}

func fromNLU(res *nlu.IntentResult) *SalesIntent {
	out := &SalesIntent{
		Intent:     res.Intent,
		Confidence: res.Confidence,
		Reply:      res.Reply,
		Source:     "llm",
		Contact: Contact{
			Name:    res.Contact.Name,
			Email:   res.Contact.Email,
			Phone:   res.Contact.Phone,
			Address: res.Contact.Address,
		},
	}
	for _, item := range res.Items {
		qty := item.Qty
		if qty < 0 {
			qty = 0
		}
		out.Items = append(out.Items, Item{Name: item.Name, Qty: qty})
	}
	if out.Intent == "" {
		out.Intent = IntentUnknown
	}
	return out
}
