package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// SearchProducts does a keyword match over name, category and description,
// scoped to the owner. Ranking beyond keyword overlap lives in the retrieval
// collaborator; this is the deterministic fallback used by the dialogue
// engine.
func (s *PostgresStore) SearchProducts(ctx context.Context, ownerUserID, query string, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(query) + "%"
	const q = `
SELECT id, owner_user_id, name, category, description, price, stock, created_at, updated_at
FROM products
WHERE owner_user_id = $1
  AND (LOWER(name) LIKE $2 OR LOWER(category) LIKE $2 OR LOWER(description) LIKE $2)
ORDER BY name ASC
LIMIT $3;
`
	rows, err := s.pool.Query(ctx, q, ownerUserID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// GetProduct loads one product with live stock and price.
func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	const q = `
SELECT id, owner_user_id, name, category, description, price, stock, created_at, updated_at
FROM products
WHERE id = $1
LIMIT 1;
`
	row := s.pool.QueryRow(ctx, q, id)
	var p Product
	if err := row.Scan(&p.ID, &p.OwnerUserID, &p.Name, &p.Category, &p.Description, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// DecrementStock reduces stock by qty. The stock >= qty guard keeps a
// racing decrement from driving stock negative.
func (s *PostgresStore) DecrementStock(ctx context.Context, id string, qty int) error {
	const q = `
UPDATE products
SET stock = stock - $2, updated_at = NOW()
WHERE id = $1 AND stock >= $2;
`
	ct, err := s.pool.Exec(ctx, q, id, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("insufficient stock for product %s", id)
	}
	return nil
}
