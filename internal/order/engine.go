// Package order turns a confirmed cart and contact into a validated,
// atomic order against the live catalog.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"salesbot/internal/metrics"
	"salesbot/internal/repo"

	"github.com/google/uuid"
)

// priceDriftTolerance is the absolute price difference between the cart and
// the catalog above which a line is rejected.
const priceDriftTolerance = 0.01

// Store is the persistence slice the order engine needs.
type Store interface {
	GetProduct(ctx context.Context, id string) (*repo.Product, error)
	DecrementStock(ctx context.Context, id string, qty int) error
	FindCustomerByChannelID(ctx context.Context, ownerUserID, channel, channelUserID string) (*repo.Customer, error)
	FindCustomerByEmail(ctx context.Context, ownerUserID, email string) (*repo.Customer, error)
	FindCustomerByPhone(ctx context.Context, ownerUserID, phone string) (*repo.Customer, error)
	CreateCustomer(ctx context.Context, profile repo.CustomerProfile) (*repo.Customer, error)
	UpdateCustomer(ctx context.Context, id string, profile repo.CustomerProfile) (*repo.Customer, error)
	InsertOrder(ctx context.Context, order repo.Order) (*repo.Order, error)
	InsertOrderItems(ctx context.Context, items []repo.OrderItem) error
	DeleteOrder(ctx context.Context, id string) error
}

// Issue describes one reason a cart line failed catalog validation.
type Issue struct {
	ProductID string
	Name      string
	Reason    string
}

// ValidationError aggregates every issue found while validating a cart.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		reasons = append(reasons, fmt.Sprintf("%s: %s", issue.Name, issue.Reason))
	}
	return "cart validation failed: " + strings.Join(reasons, "; ")
}

// Request carries everything needed to create one order.
type Request struct {
	OwnerUserID string
	Channel     string
	ChannelUser string
	Cart        []repo.CartItem
	Contact     repo.Contact
}

// Result is the outcome of a successful order creation.
type Result struct {
	OrderID    string
	OrderRef   string
	CustomerID string
	Total      float64
	ItemCount  int
}

// Engine validates carts, resolves customers, and writes orders.
type Engine struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds an order engine.
func New(store Store, logger *slog.Logger, metricRegistry *metrics.Metrics) *Engine {
	return &Engine{
		store:   store,
		logger:  logger.With("component", "order"),
		metrics: metricRegistry,
	}
}

// validatedLine pairs a cart line with its catalog-validated price.
type validatedLine struct {
	item  repo.CartItem
	price float64
}

// validateCart re-reads every line's live stock and price. Any issue aborts
// order creation with an aggregated *ValidationError.
func (e *Engine) validateCart(ctx context.Context, cart []repo.CartItem) ([]validatedLine, error) {
	var issues []Issue
	var lines []validatedLine

	for _, item := range cart {
		product, err := e.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				issues = append(issues, Issue{ProductID: item.ProductID, Name: item.Name, Reason: "no longer available"})
				continue
			}
			return nil, fmt.Errorf("validate cart line %s: %w", item.ProductID, err)
		}
		if product.Stock < item.Qty {
			issues = append(issues, Issue{
				ProductID: item.ProductID,
				Name:      product.Name,
				Reason:    fmt.Sprintf("only %d left in stock", product.Stock),
			})
			continue
		}
		if math.Abs(product.Price-item.Price) > priceDriftTolerance {
			issues = append(issues, Issue{
				ProductID: item.ProductID,
				Name:      product.Name,
				Reason:    fmt.Sprintf("price changed to %.2f", product.Price),
			})
			continue
		}
		lines = append(lines, validatedLine{item: item, price: product.Price})
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return lines, nil
}

// FindOrCreateCustomer resolves the customer by channel identity first,
// then email, then phone, and creates a new record when nothing matches.
// Matches are refreshed with the latest-provided fields.
func (e *Engine) FindOrCreateCustomer(ctx context.Context, req Request) (*repo.Customer, error) {
	profile := repo.CustomerProfile{
		OwnerUserID:   req.OwnerUserID,
		Channel:       req.Channel,
		ChannelUserID: req.ChannelUser,
		Name:          req.Contact.Name,
		Email:         req.Contact.Email,
		Phone:         req.Contact.Phone,
		Address:       req.Contact.Address,
	}

	if req.ChannelUser != "" {
		if customer, err := e.store.FindCustomerByChannelID(ctx, req.OwnerUserID, req.Channel, req.ChannelUser); err == nil {
			return e.store.UpdateCustomer(ctx, customer.ID, profile)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("find customer by channel id: %w", err)
		}
	}
	if req.Contact.Email != "" {
		if customer, err := e.store.FindCustomerByEmail(ctx, req.OwnerUserID, req.Contact.Email); err == nil {
			return e.store.UpdateCustomer(ctx, customer.ID, profile)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("find customer by email: %w", err)
		}
	}
	if req.Contact.Phone != "" {
		if customer, err := e.store.FindCustomerByPhone(ctx, req.OwnerUserID, req.Contact.Phone); err == nil {
			return e.store.UpdateCustomer(ctx, customer.ID, profile)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("find customer by phone: %w", err)
		}
	}

	customer, err := e.store.CreateCustomer(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return customer, nil
}

// CreateOrder runs the whole pipeline: validation, customer resolution, and
// the atomic order + items write. The total is computed from catalog-
// validated prices, never the raw cart. If item insertion fails the order
// header is deleted so no orphan orders remain. Stock decrement failures
// are logged, not fatal.
func (e *Engine) CreateOrder(ctx context.Context, req Request) (*Result, error) {
	if len(req.Cart) == 0 {
		return nil, errors.New("cart is empty")
	}

	lines, err := e.validateCart(ctx, req.Cart)
	if err != nil {
		e.metrics.OrdersCreated.WithLabelValues("validation_failed").Inc()
		return nil, err
	}

	customer, err := e.FindOrCreateCustomer(ctx, req)
	if err != nil {
		e.metrics.OrdersCreated.WithLabelValues("customer_failed").Inc()
		return nil, err
	}

	var total float64
	for _, line := range lines {
		total += line.price * float64(line.item.Qty)
	}
	total = math.Round(total*100) / 100

	orderRef := "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	inserted, err := e.store.InsertOrder(ctx, repo.Order{
		OwnerUserID: req.OwnerUserID,
		CustomerID:  customer.ID,
		OrderRef:    orderRef,
		Total:       total,
		Status:      "created",
		Metadata:    map[string]any{"channel": req.Channel},
	})
	if err != nil {
		e.metrics.OrdersCreated.WithLabelValues("insert_failed").Inc()
		return nil, fmt.Errorf("insert order: %w", err)
	}

	items := make([]repo.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, repo.OrderItem{
			OrderID:   inserted.ID,
			ProductID: line.item.ProductID,
			Name:      line.item.Name,
			Qty:       line.item.Qty,
			Price:     line.price,
		})
	}
	if err := e.store.InsertOrderItems(ctx, items); err != nil {
		if delErr := e.store.DeleteOrder(ctx, inserted.ID); delErr != nil {
			e.logger.Error("compensating order delete failed", "error", delErr, "order", inserted.ID)
		}
		e.metrics.OrdersCreated.WithLabelValues("items_failed").Inc()
		return nil, fmt.Errorf("insert order items: %w", err)
	}

	for _, line := range lines {
		if err := e.store.DecrementStock(ctx, line.item.ProductID, line.item.Qty); err != nil {
			e.logger.Warn("stock decrement failed", "error", err, "product", line.item.ProductID)
		}
	}

	e.metrics.OrdersCreated.WithLabelValues("success").Inc()
	e.logger.Info("order created", "order_ref", orderRef, "total", total, "items", len(items))

	return &Result{
		OrderID:    inserted.ID,
		OrderRef:   orderRef,
		CustomerID: customer.ID,
		Total:      total,
		ItemCount:  len(items),
	}, nil
}
