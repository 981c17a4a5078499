package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const subscriptionColumns = `s.id, s.user_id, s.provider_subscription_id, s.plan, s.status, s.current_period_end, s.created_at, s.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (o ops) SubscriptionByUser(ctx context.Context, userID string) (Subscription, error) {
	row := o.q.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.user_id = $1`, userID)
	return scanSubscription(row)
}

// SubscriptionByProviderID resolves the provider's correlation id to the
// local subscription and its owner's email.
func (o ops) SubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (Owned, error) {
	row := o.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+`, u.email
		   FROM subscriptions s
		   JOIN users u ON u.id = s.user_id
		  WHERE s.provider_subscription_id = $1`,
		providerSubscriptionID,
	)
	var out Owned
	sub, err := scanSubscription(row, &out.OwnerEmail)
	if err != nil {
		return Owned{}, err
	}
	out.Subscription = sub
	return out, nil
}

// ReserveCheckout records a freshly created provider subscription as the
// user's pending (TRIALING) subscription. The upsert only wins while the
// current row is FREE, TRIALING or CANCELED and still carries
// replacedProviderID ("" for none); it returns false when a confirmed paid
// subscription is in place or another checkout got there first.
func (o ops) ReserveCheckout(ctx context.Context, userID, replacedProviderID, providerSubscriptionID string, plan Plan) (bool, error) {
	now := toMillis(o.now())
	res, err := o.q.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, provider_subscription_id, plan, status, current_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULL, $6, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		     provider_subscription_id = excluded.provider_subscription_id,
		     plan = excluded.plan,
		     status = excluded.status,
		     current_period_end = NULL,
		     updated_at = excluded.updated_at
		 WHERE (subscriptions.plan = 'FREE' OR subscriptions.status IN ('TRIALING', 'CANCELED'))
		   AND COALESCE(subscriptions.provider_subscription_id, '') = $7`,
		o.newID(), userID, providerSubscriptionID, string(plan), string(StatusTrialing), now, replacedProviderID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: provider subscription %s", ErrDuplicate, providerSubscriptionID)
		}
		return false, fmt.Errorf("reserve checkout: %w", err)
	}
	return affected(res)
}

// MarkCanceled cancels the user's subscription only while it still points
// at providerSubscriptionID, so a concurrent re-subscribe is not clobbered.
func (o ops) MarkCanceled(ctx context.Context, userID, providerSubscriptionID string) (bool, error) {
	res, err := o.q.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1, updated_at = $2
		  WHERE user_id = $3 AND provider_subscription_id = $4`,
		string(StatusCanceled), toMillis(o.now()), userID, providerSubscriptionID,
	)
	if err != nil {
		return false, fmt.Errorf("mark canceled: %w", err)
	}
	return affected(res)
}

// Applied reports what ApplyTransition did.
type Applied struct {
	// Matched is false when no subscription carries the provider id.
	Matched bool
	// StatusChanged is true only for the write that moved the status.
	StatusChanged bool
}

// ApplyTransition writes a confirmed provider state by provider id. When
// setPeriodEnd is false the stored period end is left untouched. The status
// write is conditional on the status differing, so of several concurrent
// identical deliveries only one reports StatusChanged.
func (o ops) ApplyTransition(ctx context.Context, providerSubscriptionID string, status Status, setPeriodEnd bool, periodEnd *time.Time) (Applied, error) {
	now := toMillis(o.now())
	var (
		res sql.Result
		err error
	)
	if setPeriodEnd {
		res, err = o.q.ExecContext(ctx,
			`UPDATE subscriptions SET status = $1, current_period_end = $2, updated_at = $3
			  WHERE provider_subscription_id = $4 AND status <> $1`,
			string(status), nullMillis(periodEnd), now, providerSubscriptionID,
		)
	} else {
		res, err = o.q.ExecContext(ctx,
			`UPDATE subscriptions SET status = $1, updated_at = $2
			  WHERE provider_subscription_id = $3 AND status <> $1`,
			string(status), now, providerSubscriptionID,
		)
	}
	if err != nil {
		return Applied{}, fmt.Errorf("apply transition: %w", err)
	}
	changed, err := affected(res)
	if err != nil || changed {
		return Applied{Matched: changed, StatusChanged: changed}, err
	}

	// Status already in place; still refresh the period end.
	if setPeriodEnd {
		res, err = o.q.ExecContext(ctx,
			`UPDATE subscriptions SET current_period_end = $1, updated_at = $2
			  WHERE provider_subscription_id = $3`,
			nullMillis(periodEnd), now, providerSubscriptionID,
		)
	} else {
		res, err = o.q.ExecContext(ctx,
			`UPDATE subscriptions SET updated_at = $1 WHERE provider_subscription_id = $2`,
			now, providerSubscriptionID,
		)
	}
	if err != nil {
		return Applied{}, fmt.Errorf("apply transition: %w", err)
	}
	matched, err := affected(res)
	return Applied{Matched: matched}, err
}

func scanSubscription(row rowScanner, extra ...any) (Subscription, error) {
	var (
		s          Subscription
		providerID sql.NullString
		plan       string
		status     string
		periodEnd  sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	dest := append([]any{&s.ID, &s.UserID, &providerID, &plan, &status, &periodEnd, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("scan subscription: %w", err)
	}
	s.ProviderSubscriptionID = providerID.String
	s.Plan = Plan(plan)
	s.Status = Status(status)
	s.CurrentPeriodEnd = timePtr(periodEnd)
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
