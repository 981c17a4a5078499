package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
)

// Dispatcher applies verified events to local state. The subscription
// update and ledger insert of one event share a transaction; the owner
// notice is scheduled only after that transaction commits.
type Dispatcher struct {
	store    Store
	notifier Notifier
	metrics  *Metrics
}

func NewDispatcher(store Store, notifier Notifier, metrics *Metrics) *Dispatcher {
	return &Dispatcher{store: store, notifier: notifier, metrics: metrics}
}

// Dispatch applies ev. An unknown provider subscription id is not an error:
// the event is logged and reported as OutcomeUncorrelated. Storage failures
// are returned wrapped in ErrDatabase so the provider retries.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	logger := zerolog.Ctx(ctx).With().Str("event", ev.Name).Logger()

	t, ok := Next(ev)
	if !ok {
		logger.Info().Msg("ignoring webhook event")
		d.metrics.observeEvent(ev.Kind, string(OutcomeIgnored))
		return OutcomeIgnored, nil
	}
	providerSubID := ev.Subscription.ID
	logger = logger.With().Str("provider_subscription_id", providerSubID).Logger()

	var (
		owner    billingdb.Owned
		found    bool
		recorded *bool
		applied  billingdb.Applied
	)
	err := d.store.InTx(ctx, func(tx *billingdb.Tx) error {
		o, err := tx.SubscriptionByProviderID(ctx, providerSubID)
		if errors.Is(err, billingdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		owner, found = o, true

		if t.Payment != nil {
			inserted, err := recordOnce(ctx, tx, o.UserID, *t.Payment)
			if err != nil {
				return err
			}
			recorded = &inserted
		}

		a, err := tx.ApplyTransition(ctx, providerSubID, t.Status, t.SetPeriodEnd, t.PeriodEnd)
		if err != nil {
			return err
		}
		applied = a
		return nil
	})
	if err != nil {
		d.metrics.observeEvent(ev.Kind, "failed")
		return "", fmt.Errorf("%w: apply %s for %s: %v", ErrDatabase, ev.Name, providerSubID, err)
	}
	if !found {
		logger.Warn().Msg("webhook for unknown subscription; nothing to apply")
		d.metrics.observeEvent(ev.Kind, string(OutcomeUncorrelated))
		return OutcomeUncorrelated, nil
	}
	if recorded != nil {
		d.metrics.observeLedger(*recorded)
		if !*recorded {
			logger.Info().Str("provider_payment_id", t.Payment.ID).Msg("payment already recorded")
		}
	}

	logger.Info().
		Str("user_id", owner.UserID).
		Str("status", string(t.Status)).
		Bool("status_changed", applied.StatusChanged).
		Msg("subscription updated from webhook")
	d.metrics.observeEvent(ev.Kind, string(OutcomeApplied))

	// Redeliveries leave the status as it was and send nothing.
	if t.Notice != "" && applied.StatusChanged && d.notifier != nil {
		d.notifier.Go(owner.OwnerEmail, t.Notice, notify.Data{"plan": string(owner.Plan)})
	}
	return OutcomeApplied, nil
}

// recordOnce appends the payment unless its provider id is already in the
// ledger. The insert itself is ON CONFLICT DO NOTHING, so a concurrent
// delivery that passes the lookup still cannot add a second row.
func recordOnce(ctx context.Context, tx *billingdb.Tx, userID string, p PaymentSnapshot) (bool, error) {
	_, err := tx.PaymentByProviderID(ctx, p.ID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, billingdb.ErrNotFound):
		return false, fmt.Errorf("look up payment: %w", err)
	}
	inserted, err := tx.RecordPayment(ctx, billingdb.Payment{
		UserID:            userID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		ProviderPaymentID: p.ID,
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// HandleWebhook authenticates, decodes and applies one provider delivery.
func (s serviceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if !s.verifier.Verify(payload, signature) {
		s.metrics.observeSignatureFailure()
		return "", ErrAuthenticity
	}
	ev, err := ParseEvent(payload)
	if err != nil {
		s.metrics.observeEvent(EventUnknown, "rejected")
		return "", err
	}
	return s.dispatcher.Dispatch(ctx, ev)
}
