// Package identity registers users, checks passwords and issues the bearer
// tokens that guard the command API.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// Store is the user store; *billingdb.Store satisfies it.
type Store interface {
	CreateUserWithSubscription(ctx context.Context, email, passwordHash string) (billingdb.User, billingdb.Subscription, error)
	UserByID(ctx context.Context, id string) (billingdb.User, error)
	UserByEmail(ctx context.Context, email string) (billingdb.User, error)
	SubscriptionByUser(ctx context.Context, userID string) (billingdb.Subscription, error)
}

type Notifier interface {
	Go(to string, kind notify.Kind, data notify.Data)
}

// Profile is a user together with its subscription.
type Profile struct {
	billingdb.User
	Subscription *billingdb.Subscription `json:"subscription"`
}

// Session is returned by Register and Login.
type Session struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

type Service struct {
	store    Store
	tokens   *Tokens
	notifier Notifier
	cost     int
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(store Store, tokens *Tokens, notifier Notifier, opts ...Option) *Service {
	s := &Service{store: store, tokens: tokens, notifier: notifier, cost: 12}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the user with its default FREE/ACTIVE subscription and
// schedules a welcome notice.
func (s *Service) Register(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if len(password) < MinPasswordLength {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters long", ErrValidation, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return Session{}, fmt.Errorf("%w: password is too long", ErrValidation)
	}
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, sub, err := s.store.CreateUserWithSubscription(ctx, email, string(hash))
	if errors.Is(err, billingdb.ErrDuplicate) {
		return Session{}, ErrEmailTaken
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	zerolog.Ctx(ctx).Info().Str("user_id", user.ID).Msg("user registered")
	if s.notifier != nil {
		s.notifier.Go(user.Email, notify.KindWelcome, nil)
	}
	return Session{Token: token, User: Profile{User: user, Subscription: &sub}}, nil
}

// Login checks the password and issues a token. Unknown email and wrong
// password fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil || password == "" {
		return Session{}, fmt.Errorf("%w: please provide email and password", ErrValidation)
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, billingdb.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return Session{}, fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
	}

	profile, err := s.profile(ctx, user)
	if err != nil {
		return Session{}, err
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: profile}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (billingdb.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return billingdb.User{}, err
	}
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, billingdb.ErrNotFound) {
		return billingdb.User{}, fmt.Errorf("%w: the user belonging to this token no longer exists", ErrUnauthorized)
	}
	if err != nil {
		return billingdb.User{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return user, nil
}

func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, billingdb.ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return s.profile(ctx, user)
}

func (s *Service) profile(ctx context.Context, user billingdb.User) (Profile, error) {
	sub, err := s.store.SubscriptionByUser(ctx, user.ID)
	switch {
	case err == nil:
		return Profile{User: user, Subscription: &sub}, nil
	case errors.Is(err, billingdb.ErrNotFound):
		return Profile{User: user}, nil
	default:
		return Profile{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: please provide email and password", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return email, nil
}
