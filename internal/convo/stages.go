package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesbot/internal/intent"
	"salesbot/internal/order"
	"salesbot/internal/repo"
)

const (
	searchLimit     = 25
	catalogCacheTTL = 5 * time.Minute
)

// CatalogCachePrefix namespaces cached catalog search results so the admin
// flush endpoint can clear them all.
const CatalogCachePrefix = "catalog:"

// stageState is the mutable slice of a session a stage handler may change.
type stageState struct {
	Stage   repo.Stage
	Cart    []repo.CartItem
	Pending *repo.PendingProducts
	Contact repo.Contact
}

// stageResult is a handler's decision: the terminal reply plus the new
// state. Handlers never write storage themselves except through the order
// engine; the caller applies and persists the state.
type stageResult struct {
	Reply     string
	State     stageState
	Purchased bool
}

// tenant identifies whose catalog and orders a message operates on.
type tenant struct {
	OwnerUserID    string
	Channel        string
	ExternalUserID string
}

// dispatch routes one classified message to its stage handler. Cancel wins
// over every stage: it resets the session to a clean discovering state.
func (e *Engine) dispatch(ctx context.Context, t tenant, state stageState, text string, si *intent.SalesIntent) stageResult {
	if si.Intent == intent.IntentCancel {
		return stageResult{
			Reply: "No problem, I've cleared everything. What would you like to look at instead?",
			State: stageState{Stage: repo.StageDiscovering},
		}
	}

	switch state.Stage {
	case repo.StageConfirmingProducts:
		return e.handleConfirmingProducts(ctx, t, state, text, si)
	case repo.StageConfirmingOrder:
		return e.handleConfirmingOrder(ctx, t, state, text, si)
	case repo.StageCollectingContact:
		return e.handleCollectingContact(ctx, t, state, text, si)
	default:
		return e.handleDiscovering(ctx, t, state, text, si)
	}
}

func (e *Engine) handleDiscovering(ctx context.Context, t tenant, state stageState, text string, si *intent.SalesIntent) stageResult {
	state.Stage = repo.StageDiscovering
	state.Pending = nil

	switch si.Intent {
	case intent.IntentGreeting:
		reply := si.Reply
		if reply == "" {
			reply = "Hi! Tell me what you're looking for and I'll check what we have."
		}
		return stageResult{Reply: reply, State: state}

	case intent.IntentOrder, intent.IntentConfirm:
		if len(state.Cart) == 0 {
			return stageResult{
				Reply: "Your cart is still empty. What would you like to order?",
				State: state,
			}
		}
		state.Stage = repo.StageConfirmingOrder
		return stageResult{
			Reply: formatCart(state.Cart) + "\nShall I place this order?",
			State: state,
		}

	case intent.IntentModifyCart:
		return e.modifyCart(state, si)

	case intent.IntentAskQuestion:
		if si.Reply != "" {
			return stageResult{Reply: si.Reply, State: state}
		}
		return stageResult{
			Reply: "Happy to help. Could you tell me which product you're asking about?",
			State: state,
		}
	}

	// Everything else is treated as product discovery.
	query, qty := searchTerms(text, si)
	if query == "" {
		reply := si.Reply
		if reply == "" {
			reply = "What product are you looking for?"
		}
		return stageResult{Reply: reply, State: state}
	}

	candidates, err := e.searchCatalog(ctx, t.OwnerUserID, query)
	if err != nil {
		e.logger.Error("catalog search failed", "error", err, "query", query)
		return stageResult{
			Reply: "I couldn't check the catalog just now. Could you try again in a moment?",
			State: state,
		}
	}

	switch len(candidates) {
	case 0:
		return stageResult{
			Reply: fmt.Sprintf("I couldn't find anything matching %q. Want to try another name or category?", query),
			State: state,
		}
	case 1:
		state.Cart = mergeCartItem(state.Cart, candidates[0], qty)
		return stageResult{
			Reply: fmt.Sprintf("Added %s x%d.\n%s\nAnything else, or shall I place the order?", candidates[0].Name, qty, formatCart(state.Cart)),
			State: state,
		}
	default:
		state.Stage = repo.StageConfirmingProducts
		state.Pending = &repo.PendingProducts{Query: query, Candidates: candidates}
		return stageResult{Reply: formatCandidates(candidates), State: state}
	}
}

func (e *Engine) handleConfirmingProducts(ctx context.Context, t tenant, state stageState, text string, si *intent.SalesIntent) stageResult {
	if state.Pending == nil || len(state.Pending.Candidates) == 0 {
		state.Stage = repo.StageDiscovering
		state.Pending = nil
		return e.handleDiscovering(ctx, t, state, text, si)
	}

	selection := text
	if len(si.Items) > 0 && si.Items[0].Name != "" {
		selection = si.Items[0].Name
	}
	if chosen, ok := pickCandidate(state.Pending.Candidates, selection); ok {
		// The reply may be a bare ordinal ("2" picks the second candidate),
		// so a digit in the text is a selection, not a quantity. Only the
		// classifier's extracted item carries a quantity here.
		qty := 1
		if len(si.Items) > 0 && si.Items[0].Qty > 0 {
			qty = si.Items[0].Qty
		}
		state.Cart = mergeCartItem(state.Cart, *chosen, qty)
		state.Pending = nil
		state.Stage = repo.StageDiscovering
		return stageResult{
			Reply: fmt.Sprintf("Got it, %s x%d.\n%s\nAnything else, or shall I place the order?", chosen.Name, qty, formatCart(state.Cart)),
			State: state,
		}
	}

	// Not a selection. Treat the message as a refined query.
	query, qty := searchTerms(text, si)
	candidates, err := e.searchCatalog(ctx, t.OwnerUserID, query)
	if err != nil {
		e.logger.Error("catalog search failed", "error", err, "query", query)
		return stageResult{Reply: "I couldn't check the catalog just now. Could you try again?", State: state}
	}

	switch len(candidates) {
	case 0:
		return stageResult{
			Reply: "I still couldn't narrow it down. You can pick a number from the list above or try another name.",
			State: state,
		}
	case 1:
		state.Cart = mergeCartItem(state.Cart, candidates[0], qty)
		state.Pending = nil
		state.Stage = repo.StageDiscovering
		return stageResult{
			Reply: fmt.Sprintf("Got it, %s x%d.\n%s\nAnything else, or shall I place the order?", candidates[0].Name, qty, formatCart(state.Cart)),
			State: state,
		}
	default:
		state.Pending = &repo.PendingProducts{Query: query, Candidates: candidates}
		return stageResult{Reply: formatCandidates(candidates), State: state}
	}
}

func (e *Engine) handleConfirmingOrder(ctx context.Context, t tenant, state stageState, text string, si *intent.SalesIntent) stageResult {
	switch si.Intent {
	case intent.IntentConfirm, intent.IntentOrder:
		state.Stage = repo.StageCollectingContact
		if state.Contact.Complete() {
			return e.placeOrder(ctx, t, state)
		}
		return stageResult{Reply: nextContactPrompt(state.Contact), State: state}

	case intent.IntentModifyCart:
		return e.modifyCart(state, si)

	case intent.IntentProvideContact:
		state.Contact = mergeContact(state.Contact, si.Contact)
		state.Stage = repo.StageCollectingContact
		if state.Contact.Complete() {
			return e.placeOrder(ctx, t, state)
		}
		return stageResult{Reply: nextContactPrompt(state.Contact), State: state}
	}

	return stageResult{
		Reply: formatCart(state.Cart) + "\nShould I place this order? You can also change quantities or cancel.",
		State: state,
	}
}

func (e *Engine) handleCollectingContact(ctx context.Context, t tenant, state stageState, text string, si *intent.SalesIntent) stageResult {
	state.Contact = mergeContact(state.Contact, si.Contact)

	// Free text with no extracted fields often is the answer to the last
	// prompt. Fill the first missing slot with it when it looks plausible.
	if si.Contact == (intent.Contact{}) {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" && si.Intent != intent.IntentConfirm {
			switch {
			case state.Contact.Name == "":
				state.Contact.Name = trimmed
			case state.Contact.Address == "" && (state.Contact.Phone != "" || state.Contact.Email != ""):
				state.Contact.Address = trimmed
			}
		}
	}

	if state.Contact.Complete() {
		return e.placeOrder(ctx, t, state)
	}
	return stageResult{Reply: nextContactPrompt(state.Contact), State: state}
}

// placeOrder runs the order engine and maps its outcome to conversation
// state. Validation problems send the user back to confirm a corrected
// cart; transient failures apologise and keep the cart for a retry.
func (e *Engine) placeOrder(ctx context.Context, t tenant, state stageState) stageResult {
	result, err := e.orders.CreateOrder(ctx, order.Request{
		OwnerUserID: t.OwnerUserID,
		Channel:     t.Channel,
		ChannelUser: t.ExternalUserID,
		Cart:        state.Cart,
		Contact:     state.Contact,
	})
	if err != nil {
		var validation *order.ValidationError
		if errors.As(err, &validation) {
			state.Stage = repo.StageConfirmingOrder
			var lines []string
			lines = append(lines, "Before I can place the order, a few items need attention:")
			for _, issue := range validation.Issues {
				lines = append(lines, fmt.Sprintf("- %s: %s", issue.Name, issue.Reason))
			}
			lines = append(lines, "Would you like to adjust the cart?")
			return stageResult{Reply: strings.Join(lines, "\n"), State: state}
		}

		e.logger.Error("order creation failed", "error", err)
		state.Stage = repo.StageDiscovering
		return stageResult{
			Reply: "Sorry, something went wrong placing your order. Your cart is saved, so just say \"order\" to try again.",
			State: state,
		}
	}

	name := state.Contact.Name
	state.Stage = repo.StageDiscovering
	state.Cart = nil
	state.Pending = nil
	state.Contact = repo.Contact{}
	return stageResult{
		Reply: fmt.Sprintf("Order %s placed! %d item(s), total %.2f. Thank you %s, we'll be in touch about delivery soon.",
			result.OrderRef, result.ItemCount, result.Total, name),
		State:     state,
		Purchased: true,
	}
}

func (e *Engine) modifyCart(state stageState, si *intent.SalesIntent) stageResult {
	if len(si.Items) == 0 {
		return stageResult{
			Reply: formatCart(state.Cart) + "\nWhich item should I change, and to what quantity?",
			State: state,
		}
	}
	changed := false
	for _, ref := range si.Items {
		var ok bool
		state.Cart, ok = applyCartModification(state.Cart, ref)
		changed = changed || ok
	}
	if !changed {
		return stageResult{
			Reply: "I couldn't find that item in your cart.\n" + formatCart(state.Cart),
			State: state,
		}
	}
	return stageResult{Reply: formatCart(state.Cart), State: state}
}

// searchTerms picks the catalog query and quantity for a discovery message,
// preferring the classifier's extracted item over the raw text.
func searchTerms(text string, si *intent.SalesIntent) (string, int) {
	qty := parseQty(text)
	if len(si.Items) > 0 && si.Items[0].Name != "" {
		if si.Items[0].Qty > 0 {
			qty = si.Items[0].Qty
		}
		return si.Items[0].Name, qty
	}
	return strings.TrimSpace(text), qty
}

// searchCatalog ranks catalog matches for a query, serving repeated queries
// from the short-lived Redis cache when one is configured. Stock shown from
// the cache may lag; order validation always re-reads the catalog.
func (e *Engine) searchCatalog(ctx context.Context, ownerUserID, query string) ([]repo.Product, error) {
	key := catalogCacheKey(ownerUserID, query)
	if e.cache != nil {
		var cached []repo.Product
		if ok, err := e.cache.GetJSON(ctx, key, &cached); err != nil {
			e.logger.Debug("catalog cache read failed", "error", err)
		} else if ok {
			return cached, nil
		}
	}

	products, err := e.store.SearchProducts(ctx, ownerUserID, query, searchLimit)
	if err != nil {
		return nil, err
	}
	ranked := rankProducts(products, query)

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, key, ranked, catalogCacheTTL); err != nil {
			e.logger.Debug("catalog cache write failed", "error", err)
		}
	}
	return ranked, nil
}

func catalogCacheKey(ownerUserID, query string) string {
	return CatalogCachePrefix + ownerUserID + ":" + strings.ToLower(strings.TrimSpace(query))
}
