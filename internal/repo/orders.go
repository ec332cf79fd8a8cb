package repo

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertOrder stores a new order header.
func (s *PostgresStore) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	meta, err := metaJSON(order.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO orders (owner_user_id, customer_id, order_ref, total, status, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, owner_user_id, customer_id, order_ref, total, status, metadata, created_at, updated_at;
`
	row := s.pool.QueryRow(ctx, q,
		order.OwnerUserID,
		order.CustomerID,
		order.OrderRef,
		order.Total,
		order.Status,
		meta,
	)

	var inserted Order
	var rawMeta []byte
	if err := row.Scan(&inserted.ID, &inserted.OwnerUserID, &inserted.CustomerID, &inserted.OrderRef, &inserted.Total, &inserted.Status, &rawMeta, &inserted.CreatedAt, &inserted.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	inserted.Metadata = fromJSON(rawMeta)
	return &inserted, nil
}

// InsertOrderItems stores the order lines.
func (s *PostgresStore) InsertOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	const q = `
INSERT INTO order_items (order_id, product_id, name, qty, price)
VALUES ($1, $2, $3, $4, $5);
`
	for _, item := range items {
		if _, err := s.pool.Exec(ctx, q, item.OrderID, item.ProductID, item.Name, item.Qty, item.Price); err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// DeleteOrder removes an order and its items. Used as the compensating step
// when item insertion fails after the header was created.
func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1;`, id); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

func metaJSON(val map[string]any) (any, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}
