package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const userColumns = `id, email, password_hash, role, created_at`

// CreateUserWithSubscription inserts a user together with its FREE/ACTIVE
// subscription in one transaction. A taken email yields ErrDuplicate.
func (s *Store) CreateUserWithSubscription(ctx context.Context, email, passwordHash string) (User, Subscription, error) {
	now := s.now()
	user := User{
		ID:           s.newID(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		CreatedAt:    fromMillis(toMillis(now)),
	}
	sub := Subscription{
		ID:        s.newID(),
		UserID:    user.ID,
		Plan:      PlanFree,
		Status:    StatusActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.CreatedAt,
	}

	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
			user.ID, user.Email, user.PasswordHash, string(user.Role), toMillis(now),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: email %s", ErrDuplicate, user.Email)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		if _, err := tx.q.ExecContext(ctx,
			`INSERT INTO subscriptions (id, user_id, plan, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
			sub.ID, sub.UserID, string(sub.Plan), string(sub.Status), toMillis(now),
		); err != nil {
			return fmt.Errorf("insert default subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return User{}, Subscription{}, err
	}
	return user, sub, nil
}

func (o ops) UserByID(ctx context.Context, id string) (User, error) {
	return scanUser(o.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (o ops) UserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(o.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
}

func scanUser(row *sql.Row) (User, error) {
	var (
		u         User
		role      string
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = Role(role)
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}
