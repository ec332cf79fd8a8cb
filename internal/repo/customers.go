package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const customerColumns = `id, owner_user_id, channel, channel_user_id, name, email, phone, address, created_at, updated_at`

// FindCustomerByChannelID resolves a customer already linked to the channel
// identity.
func (s *PostgresStore) FindCustomerByChannelID(ctx context.Context, ownerUserID, channel, channelUserID string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = $1 AND channel = $2 AND channel_user_id = $3
LIMIT 1;
`
	return s.scanCustomerRow(s.pool.QueryRow(ctx, q, ownerUserID, channel, channelUserID))
}

// FindCustomerByEmail resolves a customer by email within the tenant.
func (s *PostgresStore) FindCustomerByEmail(ctx context.Context, ownerUserID, email string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = $1 AND LOWER(email) = LOWER($2)
LIMIT 1;
`
	return s.scanCustomerRow(s.pool.QueryRow(ctx, q, ownerUserID, email))
}

// FindCustomerByPhone resolves a customer by phone within the tenant.
func (s *PostgresStore) FindCustomerByPhone(ctx context.Context, ownerUserID, phone string) (*Customer, error) {
	q := `
SELECT ` + customerColumns + `
FROM customers
WHERE owner_user_id = $1 AND phone = $2
LIMIT 1;
`
	return s.scanCustomerRow(s.pool.QueryRow(ctx, q, ownerUserID, phone))
}

// CreateCustomer inserts a new customer record.
func (s *PostgresStore) CreateCustomer(ctx context.Context, profile CustomerProfile) (*Customer, error) {
	q := `
INSERT INTO customers (owner_user_id, channel, channel_user_id, name, email, phone, address)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + customerColumns + `;
`
	row := s.pool.QueryRow(ctx, q,
		profile.OwnerUserID,
		nullable(profile.Channel),
		nullable(profile.ChannelUserID),
		nullable(profile.Name),
		nullable(profile.Email),
		nullable(profile.Phone),
		nullable(profile.Address),
	)
	return s.scanCustomerRow(row)
}

// UpdateCustomer refreshes stored fields with the latest-provided ones.
// Empty profile fields leave the stored value in place.
func (s *PostgresStore) UpdateCustomer(ctx context.Context, id string, profile CustomerProfile) (*Customer, error) {
	q := `
UPDATE customers
SET channel = COALESCE($2, channel),
    channel_user_id = COALESCE($3, channel_user_id),
    name = COALESCE($4, name),
    email = COALESCE($5, email),
    phone = COALESCE($6, phone),
    address = COALESCE($7, address),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + customerColumns + `;
`
	row := s.pool.QueryRow(ctx, q,
		id,
		nullable(profile.Channel),
		nullable(profile.ChannelUserID),
		nullable(profile.Name),
		nullable(profile.Email),
		nullable(profile.Phone),
		nullable(profile.Address),
	)
	return s.scanCustomerRow(row)
}

func (s *PostgresStore) scanCustomerRow(row rowScanner) (*Customer, error) {
	var c Customer
	if err := row.Scan(&c.ID, &c.OwnerUserID, &c.Channel, &c.ChannelUserID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}

func nullable(val string) *string {
	if val == "" {
		return nil
	}
	return &val
}
