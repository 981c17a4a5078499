package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const paymentColumns = `id, user_id, amount, currency, provider_payment_id, created_at`

// DefaultCurrency is recorded when the provider omits one.
const DefaultCurrency = "INR"

// PaymentByProviderID looks up a ledger row by its idempotency key.
func (o ops) PaymentByProviderID(ctx context.Context, providerPaymentID string) (Payment, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = $1`, providerPaymentID)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

// RecordPayment appends p to the ledger once per provider payment id.
// Concurrent duplicates resolve on the unique constraint: exactly one
// caller sees inserted=true.
func (o ops) RecordPayment(ctx context.Context, p Payment) (inserted bool, err error) {
	if strings.TrimSpace(p.ProviderPaymentID) == "" {
		return false, errors.New("record payment: provider payment id is required")
	}
	if p.ID == "" {
		p.ID = o.newID()
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	createdAt := toMillis(o.now())
	if !p.CreatedAt.IsZero() {
		createdAt = toMillis(p.CreatedAt)
	}

	res, err := o.q.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, amount, currency, provider_payment_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider_payment_id) DO NOTHING`,
		p.ID, p.UserID, p.Amount, strings.ToUpper(p.Currency), p.ProviderPaymentID, createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return affected(res)
}

// PaymentsByUser returns the user's payments, most recent first.
func (o ops) PaymentsByUser(ctx context.Context, userID string) ([]Payment, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p         Payment
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.ProviderPaymentID, &createdAt); err != nil {
		return Payment{}, err
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}
