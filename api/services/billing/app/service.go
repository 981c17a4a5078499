package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	gw "github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
)

// Service defines the business operations of the billing engine: webhook
// reconciliation and the subscription command API.
type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error)
	CreateSubscription(ctx context.Context, userID, plan string) (Checkout, error)
	CancelSubscription(ctx context.Context, userID string) error
	GetSubscription(ctx context.Context, userID string) (billingdb.Subscription, error)
	PaymentHistory(ctx context.Context, userID string) ([]billingdb.Payment, error)
}

// Store is the persistence the engine needs; *billingdb.Store satisfies it.
type Store interface {
	InTx(ctx context.Context, fn func(tx *billingdb.Tx) error) error
	UserByID(ctx context.Context, id string) (billingdb.User, error)
	SubscriptionByUser(ctx context.Context, userID string) (billingdb.Subscription, error)
	ReserveCheckout(ctx context.Context, userID, replacedProviderID, providerSubscriptionID string, plan billingdb.Plan) (bool, error)
	MarkCanceled(ctx context.Context, userID, providerSubscriptionID string) (bool, error)
	PaymentsByUser(ctx context.Context, userID string) ([]billingdb.Payment, error)
}

// Notifier schedules an owner notice without blocking; *notify.Async
// satisfies it.
type Notifier interface {
	Go(to string, kind notify.Kind, data notify.Data)
}

type serviceImpl struct {
	cfg        Config
	store      Store
	gw         gw.ProviderGateway
	verifier   SignatureVerifier
	dispatcher *Dispatcher
	metrics    *Metrics
}

func NewService(cfg Config, store Store, g gw.ProviderGateway, notifier Notifier, metrics *Metrics) Service {
	return serviceImpl{
		cfg:        cfg,
		store:      store,
		gw:         g,
		verifier:   NewSignatureVerifier(cfg.WebhookSecret),
		dispatcher: NewDispatcher(store, notifier, metrics),
		metrics:    metrics,
	}
}

// CreateSubscription starts a provider subscription for a paid plan and
// records it as the user's pending (TRIALING) subscription. Confirmation
// arrives later by webhook. A pending checkout it replaces is cancelled at
// the provider.
func (s serviceImpl) CreateSubscription(ctx context.Context, userID, planName string) (Checkout, error) {
	plan, ok := billingdb.ParsePlan(strings.ToUpper(strings.TrimSpace(planName)))
	if !ok || !plan.Paid() {
		return Checkout{}, fmt.Errorf("%w: invalid plan %q, choose BASIC, PRO or PREMIUM", ErrValidation, planName)
	}
	providerPlanID := s.cfg.PlanIDs[plan]
	if providerPlanID == "" {
		return Checkout{}, fmt.Errorf("%w: plan %s is not available", ErrValidation, plan)
	}

	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, billingdb.ErrNotFound) {
		return Checkout{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	current, err := s.store.SubscriptionByUser(ctx, user.ID)
	switch {
	case err == nil:
		if current.HoldsPaidPlan() {
			return Checkout{}, fmt.Errorf("%w: user already holds %s subscription on %s", ErrConflict, current.Status, current.Plan)
		}
	case !errors.Is(err, billingdb.ErrNotFound):
		return Checkout{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	pctx, cancel := s.providerContext(ctx)
	providerSubID, err := s.gw.CreateSubscription(pctx, providerPlanID, gw.Customer{UserID: user.ID, Email: user.Email})
	cancel()
	if err != nil {
		return Checkout{}, fmt.Errorf("%w: create subscription: %v", ErrUpstream, err)
	}

	logger := zerolog.Ctx(ctx).With().Str("user_id", user.ID).Str("provider_subscription_id", providerSubID).Logger()
	replaced := current.ProviderSubscriptionID
	reserved, err := s.store.ReserveCheckout(ctx, user.ID, replaced, providerSubID, plan)
	if err != nil {
		s.compensate(ctx, logger, providerSubID)
		return Checkout{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !reserved {
		// A paid subscription was confirmed, or another checkout replaced
		// the row, between the check and the upsert.
		s.compensate(ctx, logger, providerSubID)
		return Checkout{}, fmt.Errorf("%w: subscription changed during checkout", ErrConflict)
	}
	if replaced != "" && current.Status != billingdb.StatusCanceled {
		// The superseded checkout no longer correlates to any local row.
		s.compensate(ctx, logger, replaced)
	}

	logger.Info().Str("plan", string(plan)).Msg("checkout started")
	return Checkout{SubscriptionID: providerSubID, PublishableKey: s.cfg.PublishableKey}, nil
}

// compensate cancels a provider subscription that could not be recorded
// locally. It outlives the caller's cancellation.
func (s serviceImpl) compensate(ctx context.Context, logger zerolog.Logger, providerSubID string) {
	logger = logger.With().Str("orphaned_provider_subscription_id", providerSubID).Logger()
	cctx, cancel := s.providerContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.gw.CancelSubscription(cctx, providerSubID); err != nil {
		logger.Error().Err(err).Msg("failed to cancel orphaned provider subscription")
		return
	}
	logger.Warn().Msg("cancelled orphaned provider subscription")
}

// CancelSubscription cancels the user's subscription at the provider, then
// records CANCELED locally. A provider failure leaves local state untouched.
func (s serviceImpl) CancelSubscription(ctx context.Context, userID string) error {
	sub, err := s.store.SubscriptionByUser(ctx, userID)
	if errors.Is(err, billingdb.ErrNotFound) {
		return fmt.Errorf("%w: no subscription to cancel", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if sub.ProviderSubscriptionID == "" {
		return fmt.Errorf("%w: no active subscription found to cancel", ErrNotFound)
	}
	if sub.Status == billingdb.StatusCanceled {
		return fmt.Errorf("%w: subscription is already cancelled", ErrConflict)
	}

	pctx, cancel := s.providerContext(ctx)
	err = s.gw.CancelSubscription(pctx, sub.ProviderSubscriptionID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: cancel subscription: %v", ErrUpstream, err)
	}

	ok, err := s.store.MarkCanceled(ctx, userID, sub.ProviderSubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if !ok {
		return fmt.Errorf("%w: subscription changed while cancelling", ErrConflict)
	}
	zerolog.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("provider_subscription_id", sub.ProviderSubscriptionID).
		Msg("subscription cancelled")
	return nil
}

func (s serviceImpl) GetSubscription(ctx context.Context, userID string) (billingdb.Subscription, error) {
	sub, err := s.store.SubscriptionByUser(ctx, userID)
	if errors.Is(err, billingdb.ErrNotFound) {
		return billingdb.Subscription{}, fmt.Errorf("%w: no subscription found", ErrNotFound)
	}
	if err != nil {
		return billingdb.Subscription{}, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return sub, nil
}

// PaymentHistory returns the user's ledger, newest first.
func (s serviceImpl) PaymentHistory(ctx context.Context, userID string) ([]billingdb.Payment, error) {
	payments, err := s.store.PaymentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return payments, nil
}

func (s serviceImpl) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}
