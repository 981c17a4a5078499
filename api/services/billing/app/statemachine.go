package app

import (
	"time"

	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
	"github.com/tbeaudouin05/billing-reconciler/api/services/notify"
)

// Transition is the state change an event asks for. The machine is
// last-writer-wins by arrival order and never rejects an event: an
// activation after a cancellation reopens the subscription.
type Transition struct {
	Status billingdb.Status
	// SetPeriodEnd reports whether PeriodEnd replaces the stored value.
	// A nil PeriodEnd with SetPeriodEnd clears it.
	SetPeriodEnd bool
	PeriodEnd    *time.Time
	// Payment is appended to the ledger when non-nil.
	Payment *PaymentSnapshot
	// Notice is sent to the owner after commit; empty for none.
	Notice notify.Kind
}

// Next maps an event onto a Transition. ok is false when the event has
// nothing to apply (unknown kind or no subscription to correlate).
func Next(ev Event) (t Transition, ok bool) {
	if ev.Subscription == nil {
		return Transition{}, false
	}
	switch ev.Kind {
	case EventSubscriptionActivated:
		return Transition{
			Status:       billingdb.StatusActive,
			SetPeriodEnd: true,
			PeriodEnd:    ev.Subscription.PeriodEnd(),
			Notice:       notify.KindActivation,
		}, true
	case EventSubscriptionCharged:
		return Transition{
			Status:       billingdb.StatusActive,
			SetPeriodEnd: true,
			PeriodEnd:    ev.Subscription.PeriodEnd(),
			Payment:      ev.Payment,
		}, true
	case EventSubscriptionCompleted, EventSubscriptionCancelled:
		return Transition{Status: billingdb.StatusCanceled, Notice: notify.KindCancellation}, true
	case EventSubscriptionPending, EventPaymentFailed:
		return Transition{Status: billingdb.StatusPastDue}, true
	case EventUnknown:
		return Transition{}, false
	default:
		return Transition{}, false
	}
}
