package convo

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"salesbot/internal/dedup"
	"salesbot/internal/intent"
	"salesbot/internal/memory"
	"salesbot/internal/metrics"
	"salesbot/internal/order"
	"salesbot/internal/repo"
)

// memStore is an in-memory repo.Store for engine tests.
type memStore struct {
	owners        map[string]string
	sessions      map[string]*repo.BotSession
	conversations map[string]*repo.Conversation
	sections      map[string]*repo.ChatSection
	messages      []repo.ChatMessage
	products      []repo.Product
	customers     []repo.Customer
	orders        []repo.Order
	orderItems    []repo.OrderItem
	seq           int
}

func newMemStore() *memStore {
	return &memStore{
		owners:        map[string]string{},
		sessions:      map[string]*repo.BotSession{},
		conversations: map[string]*repo.Conversation{},
		sections:      map[string]*repo.ChatSection{},
	}
}

func (m *memStore) id(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

func (m *memStore) Close()                                          {}
func (m *memStore) Ping(context.Context) error                      { return nil }
func (m *memStore) RunMigrations(context.Context, fs.FS) error      { return nil }

func (m *memStore) ResolveOwner(_ context.Context, channel, pageOrBotID string) (string, error) {
	if owner, ok := m.owners[channel+":"+pageOrBotID]; ok {
		return owner, nil
	}
	return "", repo.ErrNotFound
}

func (m *memStore) GetOrCreateSession(_ context.Context, ownerUserID, channel, externalUserID string) (*repo.BotSession, error) {
	key := ownerUserID + ":" + channel + ":" + externalUserID
	if s, ok := m.sessions[key]; ok {
		copied := *s
		return &copied, nil
	}
	s := &repo.BotSession{
		ID:             m.id("sess"),
		OwnerUserID:    ownerUserID,
		Channel:        channel,
		ExternalUserID: externalUserID,
		Stage:          repo.StageDiscovering,
	}
	m.sessions[key] = s
	copied := *s
	return &copied, nil
}

func (m *memStore) SaveSession(_ context.Context, session *repo.BotSession) error {
	key := session.OwnerUserID + ":" + session.Channel + ":" + session.ExternalUserID
	copied := *session
	m.sessions[key] = &copied
	return nil
}

func (m *memStore) GetOrCreateConversation(_ context.Context, ownerUserID, channel, externalUserID string) (*repo.Conversation, error) {
	key := ownerUserID + ":" + channel + ":" + externalUserID
	if c, ok := m.conversations[key]; ok {
		copied := *c
		return &copied, nil
	}
	c := &repo.Conversation{
		ID:             m.id("conv"),
		OwnerUserID:    ownerUserID,
		Channel:        channel,
		ExternalUserID: externalUserID,
		Episode:        1,
		LastActivityAt: time.Now(),
		CreatedAt:      time.Now(),
	}
	m.conversations[key] = c
	copied := *c
	return &copied, nil
}

func (m *memStore) TouchConversation(_ context.Context, id string, at time.Time) error {
	for _, c := range m.conversations {
		if c.ID == id {
			c.LastActivityAt = at
		}
	}
	return nil
}

func (m *memStore) SetConversationPurchased(_ context.Context, id string, purchased bool) error {
	for _, c := range m.conversations {
		if c.ID == id {
			c.Purchased = purchased
		}
	}
	return nil
}

func (m *memStore) GetOpenSection(_ context.Context, conversationID string) (*repo.ChatSection, error) {
	for _, sec := range m.sections {
		if sec.ConversationID == conversationID && sec.ClosedAt == nil {
			copied := *sec
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) AdvanceEpisode(_ context.Context, id string) error {
	for _, c := range m.conversations {
		if c.ID == id {
			c.Episode++
			c.Purchased = false
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memStore) GetOpenSectionByNumber(_ context.Context, conversationID string, episode, number int) (*repo.ChatSection, error) {
	for _, sec := range m.sections {
		if sec.ConversationID == conversationID && sec.Episode == episode && sec.SectionNumber == number && sec.ClosedAt == nil {
			copied := *sec
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) GetSectionByID(_ context.Context, id string) (*repo.ChatSection, error) {
	if sec, ok := m.sections[id]; ok {
		copied := *sec
		return &copied, nil
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) CreateSection(_ context.Context, section repo.ChatSection) (*repo.ChatSection, error) {
	section.ID = m.id("sec")
	if section.Episode <= 0 {
		section.Episode = 1
	}
	if section.StartedAt.IsZero() {
		section.StartedAt = time.Now()
	}
	m.sections[section.ID] = &section
	copied := section
	return &copied, nil
}

func (m *memStore) MarkSectionPurchased(_ context.Context, id string, purchased bool) error {
	if sec, ok := m.sections[id]; ok {
		sec.Purchased = purchased
	}
	return nil
}

func (m *memStore) CloseSectionRecord(_ context.Context, id string, summary *string, messageCount int, purchased bool, closedAt time.Time) error {
	if sec, ok := m.sections[id]; ok && sec.ClosedAt == nil {
		sec.MessagesSummary = summary
		sec.MessageCount = messageCount
		sec.Purchased = purchased
		sec.ClosedAt = &closedAt
	}
	return nil
}

func (m *memStore) ListClosedSections(_ context.Context, conversationID string, limit int) ([]repo.ChatSection, error) {
	var out []repo.ChatSection
	for _, sec := range m.sections {
		if sec.ConversationID == conversationID && sec.ClosedAt != nil {
			out = append(out, *sec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) InsertChatMessage(_ context.Context, msg repo.ChatMessage) error {
	msg.ID = m.id("msg")
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) ListMessagesSince(_ context.Context, conversationID string, since time.Time) ([]repo.ChatMessage, error) {
	var out []repo.ChatMessage
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && !msg.CreatedAt.Before(since) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) AssignMessagesToSection(_ context.Context, conversationID, sectionID string, since time.Time) error {
	for i := range m.messages {
		msg := &m.messages[i]
		if msg.ConversationID == conversationID && msg.SectionID == nil && !msg.CreatedAt.Before(since) {
			msg.SectionID = &sectionID
		}
	}
	return nil
}

func (m *memStore) SearchProducts(_ context.Context, ownerUserID, query string, limit int) ([]repo.Product, error) {
	lower := strings.ToLower(query)
	var out []repo.Product
	for _, p := range m.products {
		if p.OwnerUserID != ownerUserID {
			continue
		}
		haystack := strings.ToLower(p.Name + " " + p.Category + " " + p.Description)
		matched := false
		for _, tok := range strings.Fields(lower) {
			if strings.Contains(haystack, tok) {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, p)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (*repo.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			copied := p
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) DecrementStock(_ context.Context, id string, qty int) error {
	for i := range m.products {
		if m.products[i].ID == id {
			m.products[i].Stock -= qty
		}
	}
	return nil
}

func (m *memStore) FindCustomerByChannelID(_ context.Context, _, channel, channelUserID string) (*repo.Customer, error) {
	for _, c := range m.customers {
		if c.Channel != nil && *c.Channel == channel && c.ChannelUserID != nil && *c.ChannelUserID == channelUserID {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) FindCustomerByEmail(_ context.Context, _, email string) (*repo.Customer, error) {
	for _, c := range m.customers {
		if c.Email != nil && *c.Email == email {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) FindCustomerByPhone(_ context.Context, _, phone string) (*repo.Customer, error) {
	for _, c := range m.customers {
		if c.Phone != nil && *c.Phone == phone {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) CreateCustomer(_ context.Context, profile repo.CustomerProfile) (*repo.Customer, error) {
	c := repo.Customer{
		ID:            m.id("cust"),
		OwnerUserID:   profile.OwnerUserID,
		Channel:       &profile.Channel,
		ChannelUserID: &profile.ChannelUserID,
		Name:          &profile.Name,
		Email:         &profile.Email,
		Phone:         &profile.Phone,
		Address:       &profile.Address,
	}
	m.customers = append(m.customers, c)
	copied := c
	return &copied, nil
}

func (m *memStore) UpdateCustomer(_ context.Context, id string, profile repo.CustomerProfile) (*repo.Customer, error) {
	for i := range m.customers {
		if m.customers[i].ID == id {
			if profile.Name != "" {
				m.customers[i].Name = &profile.Name
			}
			copied := m.customers[i]
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) InsertOrder(_ context.Context, o repo.Order) (*repo.Order, error) {
	o.ID = m.id("ord")
	m.orders = append(m.orders, o)
	copied := o
	return &copied, nil
}

func (m *memStore) InsertOrderItems(_ context.Context, items []repo.OrderItem) error {
	m.orderItems = append(m.orderItems, items...)
	return nil
}

func (m *memStore) DeleteOrder(_ context.Context, id string) error {
	var kept []repo.Order
	for _, o := range m.orders {
		if o.ID != id {
			kept = append(kept, o)
		}
	}
	m.orders = kept
	return nil
}

func (m *memStore) SyncGeminiKeys(context.Context, []string) error { return nil }
func (m *memStore) ListActiveGeminiKeys(context.Context) ([]repo.APIKey, error) {
	return nil, nil
}
func (m *memStore) SetCooldownUntil(context.Context, string, time.Time) error { return nil }
func (m *memStore) ClearCooldown(context.Context, string) error               { return nil }

// scriptedClassifier returns canned intents in sequence.
type scriptedClassifier struct {
	results []*intent.SalesIntent
	calls   int
}

func (s *scriptedClassifier) Classify(context.Context, intent.Input) *intent.SalesIntent {
	if s.calls >= len(s.results) {
		return &intent.SalesIntent{Intent: intent.IntentUnknown, Source: "pattern"}
	}
	res := s.results[s.calls]
	s.calls++
	return res
}

type recordingSender struct {
	sent []string
}

func (r *recordingSender) SendText(_ context.Context, _, _, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

type fixture struct {
	store      *memStore
	sender     *recordingSender
	classifier *scriptedClassifier
	engine     *Engine
}

func newFixture(results ...*intent.SalesIntent) *fixture {
	store := newMemStore()
	store.owners["telegram:bot1"] = "owner-1"
	store.products = []repo.Product{
		{ID: "p1", OwnerUserID: "owner-1", Name: "Red Shirt", Category: "Apparel", Price: 15, Stock: 10},
		{ID: "p2", OwnerUserID: "owner-1", Name: "Red Shirt Slim", Category: "Apparel", Price: 18, Stock: 4},
		{ID: "p3", OwnerUserID: "owner-1", Name: "Red Shirt Oversize", Category: "Apparel", Price: 17, Stock: 2},
		{ID: "p4", OwnerUserID: "owner-1", Name: "Blue Mug", Category: "Kitchen", Price: 8, Stock: 5},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.Registry("test")
	sender := &recordingSender{}
	classifier := &scriptedClassifier{results: results}

	engine := New(Options{
		Store:      store,
		Deduper:    dedup.NewMemoryDeduper(),
		Sections:   memory.NewSectionManager(store, nil, logger, reg, 5*time.Minute),
		Contexts:   memory.NewContextBuilder(store, logger),
		Classifier: classifier,
		Topics:     intent.NewTopicFilter(nil, logger),
		Orders:     order.New(store, logger, reg),
		Sender:     sender,
		Logger:     logger,
		Metrics:    reg,
	})
	return &fixture{store: store, sender: sender, classifier: classifier, engine: engine}
}

func (f *fixture) session(t *testing.T) *repo.BotSession {
	t.Helper()
	s, ok := f.store.sessions["owner-1:telegram:42"]
	if !ok {
		t.Fatal("session not persisted")
	}
	return s
}

func inboundMsg(id, text string) Inbound {
	return Inbound{
		Channel:        "telegram",
		ExternalUserID: "42",
		PageOrBotID:    "bot1",
		MessageID:      id,
		Text:           text,
	}
}

func TestAmbiguousSearchEntersConfirmingProducts(t *testing.T) {
	f := newFixture(&intent.SalesIntent{
		Intent: intent.IntentBrowse,
		Items:  []intent.Item{{Name: "red shirt", Qty: 1}},
		Source: "llm",
	})

	if err := f.engine.HandleMessage(context.Background(), inboundMsg("m1", "I want a red shirt")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session := f.session(t)
	if session.Stage != repo.StageConfirmingProducts {
		t.Fatalf("expected confirming_products, got %s", session.Stage)
	}
	if session.PendingProducts == nil || len(session.PendingProducts.Candidates) != 3 {
		t.Fatalf("expected 3 pending candidates, got %+v", session.PendingProducts)
	}
	if len(session.Cart) != 0 {
		t.Fatal("cart must be unchanged on ambiguity")
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(f.sender.sent))
	}
}

func TestCandidateSelectionAddsToCart(t *testing.T) {
	f := newFixture(
		&intent.SalesIntent{Intent: intent.IntentBrowse, Items: []intent.Item{{Name: "red shirt", Qty: 1}}, Source: "llm"},
		&intent.SalesIntent{Intent: intent.IntentUnknown, Source: "pattern"},
	)
	ctx := context.Background()

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "I want a red shirt")); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.HandleMessage(ctx, inboundMsg("m2", "Red Shirt Slim")); err != nil {
		t.Fatal(err)
	}

	session := f.session(t)
	if session.Stage != repo.StageDiscovering {
		t.Fatalf("expected discovering after selection, got %s", session.Stage)
	}
	if session.PendingProducts != nil {
		t.Fatal("pending candidates must be cleared")
	}
	if len(session.Cart) != 1 {
		t.Fatalf("expected one cart line, got %d", len(session.Cart))
	}
	line := session.Cart[0]
	if line.ProductID != "p2" || line.Qty != 1 || line.Price != 18 {
		t.Fatalf("unexpected cart line %+v", line)
	}
}

func TestContactInOneMessagePlacesOrder(t *testing.T) {
	f := newFixture(&intent.SalesIntent{
		Intent: intent.IntentProvideContact,
		Contact: intent.Contact{
			Name:    "Andi",
			Phone:   "081234567890",
			Address: "Jalan Mawar 1",
		},
		Source: "llm",
	})

	// Seed an in-flight session already collecting contact details.
	f.store.sessions["owner-1:telegram:42"] = &repo.BotSession{
		ID: "sess-seed", OwnerUserID: "owner-1", Channel: "telegram", ExternalUserID: "42",
		Stage: repo.StageCollectingContact,
		Cart:  []repo.CartItem{{ProductID: "p4", Name: "Blue Mug", Qty: 2, Price: 8}},
	}

	if err := f.engine.HandleMessage(context.Background(), inboundMsg("m1", "Andi, 081234567890, Jalan Mawar 1")); err != nil {
		t.Fatal(err)
	}

	session := f.session(t)
	if session.Stage != repo.StageDiscovering {
		t.Fatalf("expected discovering after order, got %s", session.Stage)
	}
	if len(session.Cart) != 0 {
		t.Fatal("cart must be cleared on success")
	}
	if session.Contact != (repo.Contact{}) {
		t.Fatal("contact must be cleared on success")
	}
	if len(f.store.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(f.store.orders))
	}
	if f.store.orders[0].Total != 16 {
		t.Fatalf("expected catalog total 16, got %.2f", f.store.orders[0].Total)
	}
	reply := f.sender.sent[len(f.sender.sent)-1]
	if !strings.Contains(reply, f.store.orders[0].OrderRef) || !strings.Contains(reply, "16.00") {
		t.Fatalf("reply must carry order ref and total, got %q", reply)
	}
	for _, conv := range f.store.conversations {
		if !conv.Purchased {
			t.Fatal("conversation must be flagged purchased")
		}
	}
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	f := newFixture(
		&intent.SalesIntent{Intent: intent.IntentBrowse, Items: []intent.Item{{Name: "blue mug", Qty: 1}}, Source: "llm"},
		&intent.SalesIntent{Intent: intent.IntentBrowse, Items: []intent.Item{{Name: "blue mug", Qty: 1}}, Source: "llm"},
	)
	ctx := context.Background()

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "one blue mug please")); err != nil {
		t.Fatal(err)
	}
	cartAfterFirst := len(f.session(t).Cart)
	sendsAfterFirst := len(f.sender.sent)

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "one blue mug please")); err != nil {
		t.Fatal(err)
	}

	if len(f.session(t).Cart) != cartAfterFirst {
		t.Fatal("duplicate delivery mutated the cart")
	}
	if len(f.sender.sent) != sendsAfterFirst {
		t.Fatal("duplicate delivery produced a second reply")
	}
	if f.classifier.calls != 1 {
		t.Fatalf("duplicate must not reach the classifier, got %d calls", f.classifier.calls)
	}
}

func TestOffTopicLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	f.store.sessions["owner-1:telegram:42"] = &repo.BotSession{
		ID: "sess-seed", OwnerUserID: "owner-1", Channel: "telegram", ExternalUserID: "42",
		Stage: repo.StageConfirmingOrder,
		Cart:  []repo.CartItem{{ProductID: "p4", Name: "Blue Mug", Qty: 1, Price: 8}},
	}

	if err := f.engine.HandleMessage(context.Background(), inboundMsg("m1", "tell me a joke")); err != nil {
		t.Fatal(err)
	}

	session := f.session(t)
	if session.Stage != repo.StageConfirmingOrder {
		t.Fatalf("off-topic message changed the stage to %s", session.Stage)
	}
	if len(session.Cart) != 1 {
		t.Fatal("off-topic message mutated the cart")
	}
	if f.classifier.calls != 0 {
		t.Fatal("off-topic message must not reach the classifier")
	}
	if len(f.sender.sent) != 1 {
		t.Fatal("off-topic message still deserves a redirect reply")
	}
}

func TestCancelResetsEverything(t *testing.T) {
	f := newFixture(&intent.SalesIntent{Intent: intent.IntentCancel, Confidence: 0.9, Source: "pattern"})
	f.store.sessions["owner-1:telegram:42"] = &repo.BotSession{
		ID: "sess-seed", OwnerUserID: "owner-1", Channel: "telegram", ExternalUserID: "42",
		Stage:           repo.StageConfirmingOrder,
		Cart:            []repo.CartItem{{ProductID: "p4", Name: "Blue Mug", Qty: 1, Price: 8}},
		PendingProducts: &repo.PendingProducts{Query: "mug"},
		Contact:         repo.Contact{Name: "Andi"},
	}

	if err := f.engine.HandleMessage(context.Background(), inboundMsg("m1", "cancel")); err != nil {
		t.Fatal(err)
	}

	session := f.session(t)
	if session.Stage != repo.StageDiscovering {
		t.Fatalf("expected discovering after cancel, got %s", session.Stage)
	}
	if len(session.Cart) != 0 || session.PendingProducts != nil || session.Contact != (repo.Contact{}) {
		t.Fatal("cancel must clear cart, pending products, and contact")
	}
}

func TestStageAlwaysValid(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	messages := []string{"hello", "red shirt", "2", "yes", "checkout", "no", "gibberish zzz"}

	for i, text := range messages {
		if err := f.engine.HandleMessage(ctx, inboundMsg("m"+strconv.Itoa(i), text)); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if s := f.session(t); !s.Stage.Valid() {
			t.Fatalf("after %q the stage is invalid: %q", text, s.Stage)
		}
	}
}

func TestUnknownTenantDropped(t *testing.T) {
	f := newFixture()
	in := inboundMsg("m1", "hello")
	in.PageOrBotID = "missing-bot"

	if err := f.engine.HandleMessage(context.Background(), in); err != nil {
		t.Fatalf("unknown tenant must be a silent no-op, got %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("no reply may be sent for an unknown tenant")
	}
}

func TestIdleSectionRotatesOnNextMessage(t *testing.T) {
	f := newFixture(
		&intent.SalesIntent{Intent: intent.IntentGreeting, Confidence: 0.8, Source: "pattern"},
		&intent.SalesIntent{Intent: intent.IntentGreeting, Confidence: 0.8, Source: "pattern"},
	)
	ctx := context.Background()

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "hello")); err != nil {
		t.Fatal(err)
	}

	// Simulate six idle minutes.
	for _, conv := range f.store.conversations {
		conv.LastActivityAt = time.Now().Add(-6 * time.Minute)
	}
	for _, sec := range f.store.sections {
		sec.StartedAt = time.Now().Add(-10 * time.Minute)
	}

	if err := f.engine.HandleMessage(ctx, inboundMsg("m2", "hello again")); err != nil {
		t.Fatal(err)
	}

	var open, closed int
	for _, sec := range f.store.sections {
		if sec.ClosedAt == nil {
			open++
		} else {
			closed++
			if sec.MessagesSummary == nil {
				t.Fatal("closed section with messages must carry a summary")
			}
		}
	}
	if open != 1 {
		t.Fatalf("expected exactly one open section, got %d", open)
	}
	if closed != 1 {
		t.Fatalf("expected one closed section, got %d", closed)
	}
}

func TestOrdinalReplyPicksCandidateWithQuantityOne(t *testing.T) {
	f := newFixture(
		&intent.SalesIntent{Intent: intent.IntentBrowse, Items: []intent.Item{{Name: "red shirt", Qty: 1}}, Source: "llm"},
		&intent.SalesIntent{Intent: intent.IntentUnknown, Source: "pattern"},
	)
	ctx := context.Background()

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "I want a red shirt")); err != nil {
		t.Fatal(err)
	}
	// A bare "2" picks the second candidate; the digit is not a quantity.
	if err := f.engine.HandleMessage(ctx, inboundMsg("m2", "2")); err != nil {
		t.Fatal(err)
	}

	session := f.session(t)
	if len(session.Cart) != 1 {
		t.Fatalf("expected one cart line, got %d", len(session.Cart))
	}
	line := session.Cart[0]
	if line.ProductID != "p3" {
		t.Fatalf("expected the second-ranked candidate p3, got %s", line.ProductID)
	}
	if line.Qty != 1 {
		t.Fatalf("ordinal selection must default to quantity 1, got %d", line.Qty)
	}
}

func TestPurchaseThenIdleStartsFreshEpisode(t *testing.T) {
	f := newFixture(
		&intent.SalesIntent{
			Intent:  intent.IntentProvideContact,
			Contact: intent.Contact{Name: "Andi", Phone: "081234567890", Address: "Jalan Mawar 1"},
			Source:  "llm",
		},
		&intent.SalesIntent{Intent: intent.IntentGreeting, Confidence: 0.8, Source: "pattern"},
	)
	ctx := context.Background()
	f.store.sessions["owner-1:telegram:42"] = &repo.BotSession{
		ID: "sess-seed", OwnerUserID: "owner-1", Channel: "telegram", ExternalUserID: "42",
		Stage: repo.StageCollectingContact,
		Cart:  []repo.CartItem{{ProductID: "p4", Name: "Blue Mug", Qty: 2, Price: 8}},
	}

	if err := f.engine.HandleMessage(ctx, inboundMsg("m1", "Andi, 081234567890, Jalan Mawar 1")); err != nil {
		t.Fatal(err)
	}
	if len(f.store.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(f.store.orders))
	}
	for _, conv := range f.store.conversations {
		if !conv.Purchased || conv.Episode != 1 {
			t.Fatalf("expected a purchased episode-1 conversation, got %+v", conv)
		}
	}

	// Idle past the timeout so the next message crosses the boundary.
	for _, conv := range f.store.conversations {
		conv.LastActivityAt = time.Now().Add(-6 * time.Minute)
	}
	for _, sec := range f.store.sections {
		sec.StartedAt = time.Now().Add(-10 * time.Minute)
	}

	if err := f.engine.HandleMessage(ctx, inboundMsg("m2", "hello again")); err != nil {
		t.Fatal(err)
	}

	for _, conv := range f.store.conversations {
		if conv.Purchased {
			t.Fatal("purchased flag must clear on the post-purchase boundary")
		}
		if conv.Episode != 2 {
			t.Fatalf("expected episode 2, got %d", conv.Episode)
		}
	}
	var open *repo.ChatSection
	var closed int
	for _, sec := range f.store.sections {
		if sec.ClosedAt == nil {
			if open != nil {
				t.Fatal("more than one open section")
			}
			open = sec
			continue
		}
		closed++
		if sec.Episode != 1 || !sec.Purchased {
			t.Fatalf("closed section must be the purchased episode-1 one, got %+v", sec)
		}
	}
	if open == nil {
		t.Fatal("no open section after rotation")
	}
	if open.Episode != 2 || open.SectionNumber != 1 {
		t.Fatalf("expected a fresh episode-2 section numbered 1, got %+v", open)
	}
	if closed != 1 {
		t.Fatalf("expected one closed section, got %d", closed)
	}
}
