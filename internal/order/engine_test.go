package order

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"salesbot/internal/metrics"
	"salesbot/internal/repo"
)

type fakeOrderStore struct {
	products     map[string]repo.Product
	customers    []repo.Customer
	orders       []repo.Order
	items        []repo.OrderItem
	deleted      []string
	decremented  map[string]int
	failItems    bool
	failDecrStep bool
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		products:    map[string]repo.Product{},
		decremented: map[string]int{},
	}
}

func (f *fakeOrderStore) GetProduct(_ context.Context, id string) (*repo.Product, error) {
	if p, ok := f.products[id]; ok {
		copied := p
		return &copied, nil
	}
	return nil, repo.ErrNotFound
}

func (f *fakeOrderStore) DecrementStock(_ context.Context, id string, qty int) error {
	if f.failDecrStep {
		return errors.New("stock write refused")
	}
	f.decremented[id] += qty
	return nil
}

func (f *fakeOrderStore) FindCustomerByChannelID(_ context.Context, _, channel, channelUserID string) (*repo.Customer, error) {
	for _, c := range f.customers {
		if c.Channel != nil && *c.Channel == channel && c.ChannelUserID != nil && *c.ChannelUserID == channelUserID {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeOrderStore) FindCustomerByEmail(_ context.Context, _, email string) (*repo.Customer, error) {
	for _, c := range f.customers {
		if c.Email != nil && *c.Email == email {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeOrderStore) FindCustomerByPhone(_ context.Context, _, phone string) (*repo.Customer, error) {
	for _, c := range f.customers {
		if c.Phone != nil && *c.Phone == phone {
			copied := c
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeOrderStore) CreateCustomer(_ context.Context, profile repo.CustomerProfile) (*repo.Customer, error) {
	customer := repo.Customer{
		ID:            "cust-" + profile.ChannelUserID,
		OwnerUserID:   profile.OwnerUserID,
		Channel:       &profile.Channel,
		ChannelUserID: &profile.ChannelUserID,
		Name:          &profile.Name,
		Email:         &profile.Email,
		Phone:         &profile.Phone,
		Address:       &profile.Address,
	}
	f.customers = append(f.customers, customer)
	copied := customer
	return &copied, nil
}

func (f *fakeOrderStore) UpdateCustomer(_ context.Context, id string, profile repo.CustomerProfile) (*repo.Customer, error) {
	for i := range f.customers {
		if f.customers[i].ID == id {
			if profile.Name != "" {
				f.customers[i].Name = &profile.Name
			}
			if profile.Address != "" {
				f.customers[i].Address = &profile.Address
			}
			copied := f.customers[i]
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeOrderStore) InsertOrder(_ context.Context, order repo.Order) (*repo.Order, error) {
	order.ID = "ord-1"
	f.orders = append(f.orders, order)
	copied := order
	return &copied, nil
}

func (f *fakeOrderStore) InsertOrderItems(_ context.Context, items []repo.OrderItem) error {
	if f.failItems {
		return errors.New("items insert refused")
	}
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeOrderStore) DeleteOrder(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func testEngine(store Store) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger, metrics.Registry("test"))
}

func baseRequest(cart []repo.CartItem) Request {
	return Request{
		OwnerUserID: "owner-1",
		Channel:     "telegram",
		ChannelUser: "42",
		Cart:        cart,
		Contact:     repo.Contact{Name: "Andi", Phone: "0812345678", Address: "Jalan Mawar 1"},
	}
}

func TestCreateOrderUsesCatalogPrices(t *testing.T) {
	store := newFakeOrderStore()
	store.products["p1"] = repo.Product{ID: "p1", Name: "Red Shirt", Price: 15.00, Stock: 10}

	// Cart price within tolerance of the catalog but not identical.
	result, err := testEngine(store).CreateOrder(context.Background(), baseRequest([]repo.CartItem{
		{ProductID: "p1", Name: "Red Shirt", Qty: 2, Price: 15.005},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 30.00 {
		t.Fatalf("total must come from catalog prices, got %.3f", result.Total)
	}
	if result.ItemCount != 1 {
		t.Fatalf("expected 1 line, got %d", result.ItemCount)
	}
	if store.decremented["p1"] != 2 {
		t.Fatalf("expected stock decremented by 2, got %d", store.decremented["p1"])
	}
}

func TestCreateOrderRejectsPriceDrift(t *testing.T) {
	store := newFakeOrderStore()
	store.products["p1"] = repo.Product{ID: "p1", Name: "Red Shirt", Price: 18.00, Stock: 10}

	_, err := testEngine(store).CreateOrder(context.Background(), baseRequest([]repo.CartItem{
		{ProductID: "p1", Name: "Red Shirt", Qty: 1, Price: 15.00},
	}))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validation.Issues) != 1 || !strings.Contains(validation.Issues[0].Reason, "price changed") {
		t.Fatalf("unexpected issues: %+v", validation.Issues)
	}
	if len(store.orders) != 0 {
		t.Fatal("no order may be written on validation failure")
	}
}

func TestCreateOrderAggregatesIssues(t *testing.T) {
	store := newFakeOrderStore()
	store.products["p1"] = repo.Product{ID: "p1", Name: "Red Shirt", Price: 15.00, Stock: 1}

	_, err := testEngine(store).CreateOrder(context.Background(), baseRequest([]repo.CartItem{
		{ProductID: "p1", Name: "Red Shirt", Qty: 5, Price: 15.00},
		{ProductID: "missing", Name: "Ghost Item", Qty: 1, Price: 9.99},
	}))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(validation.Issues) != 2 {
		t.Fatalf("expected both issues reported, got %+v", validation.Issues)
	}
}

func TestCreateOrderCompensatesOnItemFailure(t *testing.T) {
	store := newFakeOrderStore()
	store.products["p1"] = repo.Product{ID: "p1", Name: "Red Shirt", Price: 15.00, Stock: 10}
	store.failItems = true

	_, err := testEngine(store).CreateOrder(context.Background(), baseRequest([]repo.CartItem{
		{ProductID: "p1", Name: "Red Shirt", Qty: 1, Price: 15.00},
	}))
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "ord-1" {
		t.Fatalf("expected compensating delete of ord-1, got %v", store.deleted)
	}
}

func TestCreateOrderSurvivesStockDecrementFailure(t *testing.T) {
	store := newFakeOrderStore()
	store.products["p1"] = repo.Product{ID: "p1", Name: "Red Shirt", Price: 15.00, Stock: 10}
	store.failDecrStep = true

	if _, err := testEngine(store).CreateOrder(context.Background(), baseRequest([]repo.CartItem{
		{ProductID: "p1", Name: "Red Shirt", Qty: 1, Price: 15.00},
	})); err != nil {
		t.Fatalf("stock decrement failure must not fail the order: %v", err)
	}
}

func TestFindOrCreateCustomerPriority(t *testing.T) {
	store := newFakeOrderStore()
	channel, channelUser := "telegram", "42"
	email := "andi@example.com"
	store.customers = append(store.customers, repo.Customer{
		ID: "cust-chan", Channel: &channel, ChannelUserID: &channelUser,
	}, repo.Customer{
		ID: "cust-mail", Email: &email,
	})

	engine := testEngine(store)
	req := baseRequest(nil)
	req.Contact.Email = email

	// Channel identity outranks the email match.
	customer, err := engine.FindOrCreateCustomer(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.ID != "cust-chan" {
		t.Fatalf("expected channel match first, got %s", customer.ID)
	}

	// Without a channel match the email wins.
	req.ChannelUser = "other"
	customer, err = engine.FindOrCreateCustomer(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.ID != "cust-mail" {
		t.Fatalf("expected email match, got %s", customer.ID)
	}

	// Nothing matches: a customer is created.
	req.Contact.Email = "new@example.com"
	req.Contact.Phone = "000000000"
	customer, err = engine.FindOrCreateCustomer(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.ID == "cust-chan" || customer.ID == "cust-mail" {
		t.Fatal("expected a new customer record")
	}
}

func TestFindOrCreateCustomerRefreshesFields(t *testing.T) {
	store := newFakeOrderStore()
	channel, channelUser := "telegram", "42"
	stale := "Old Name"
	store.customers = append(store.customers, repo.Customer{
		ID: "cust-chan", Channel: &channel, ChannelUserID: &channelUser, Name: &stale,
	})

	req := baseRequest(nil)
	customer, err := testEngine(store).FindOrCreateCustomer(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if customer.Name == nil || *customer.Name != "Andi" {
		t.Fatalf("expected refreshed name, got %v", customer.Name)
	}
}

func TestCreateOrderEmptyCart(t *testing.T) {
	if _, err := testEngine(newFakeOrderStore()).CreateOrder(context.Background(), baseRequest(nil)); err == nil {
		t.Fatal("expected error for empty cart")
	}
}
