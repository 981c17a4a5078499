package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of provider events the engine understands.
type EventKind int

const (
	// EventUnknown is any event name outside the table below. It is accepted
	// and ignored.
	EventUnknown EventKind = iota
	EventSubscriptionActivated
	EventSubscriptionCharged
	EventSubscriptionCompleted
	EventSubscriptionCancelled
	EventSubscriptionPending
	EventPaymentFailed
)

var eventNames = map[string]EventKind{
	"subscription.activated": EventSubscriptionActivated,
	"subscription.charged":   EventSubscriptionCharged,
	"subscription.completed": EventSubscriptionCompleted,
	"subscription.cancelled": EventSubscriptionCancelled,
	"subscription.pending":   EventSubscriptionPending,
	"payment.failed":         EventPaymentFailed,
}

func (k EventKind) String() string {
	for name, kind := range eventNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// SubscriptionSnapshot is the provider's view of a subscription at event time.
type SubscriptionSnapshot struct {
	ID string
	// CurrentEnd is the period end in unix seconds; nil when absent.
	CurrentEnd *int64
}

// PeriodEnd converts CurrentEnd to a UTC time. A zero or missing value
// yields nil.
func (s SubscriptionSnapshot) PeriodEnd() *time.Time {
	if s.CurrentEnd == nil || *s.CurrentEnd <= 0 {
		return nil
	}
	t := time.Unix(*s.CurrentEnd, 0).UTC()
	return &t
}

type PaymentSnapshot struct {
	ID       string
	Amount   int64
	Currency string
}

// Event is a verified, decoded provider notification.
type Event struct {
	Kind EventKind
	// Name is the raw event name as delivered.
	Name         string
	Subscription *SubscriptionSnapshot
	Payment      *PaymentSnapshot
}

type wireEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Subscription *struct {
			Entity struct {
				ID         string `json:"id"`
				CurrentEnd *int64 `json:"current_end"`
			} `json:"entity"`
		} `json:"subscription"`
		Payment *struct {
			Entity struct {
				ID       string `json:"id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseEvent decodes a raw webhook body. It must only be called on bytes that
// already passed signature verification.
func ParseEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("%w: decode body: %v", ErrBadEvent, err)
	}
	name := strings.TrimSpace(w.Event)
	if name == "" {
		return Event{}, fmt.Errorf("%w: missing event name", ErrBadEvent)
	}

	ev := Event{Kind: eventNames[name], Name: name}
	if s := w.Payload.Subscription; s != nil && s.Entity.ID != "" {
		ev.Subscription = &SubscriptionSnapshot{ID: s.Entity.ID, CurrentEnd: s.Entity.CurrentEnd}
	}
	if p := w.Payload.Payment; p != nil && p.Entity.ID != "" {
		ev.Payment = &PaymentSnapshot{
			ID:       p.Entity.ID,
			Amount:   p.Entity.Amount,
			Currency: strings.ToUpper(strings.TrimSpace(p.Entity.Currency)),
		}
	}

	switch ev.Kind {
	case EventSubscriptionActivated, EventSubscriptionCompleted, EventSubscriptionCancelled, EventSubscriptionPending:
		if ev.Subscription == nil {
			return Event{}, fmt.Errorf("%w: %s without subscription id", ErrBadEvent, name)
		}
	case EventSubscriptionCharged:
		if ev.Subscription == nil {
			return Event{}, fmt.Errorf("%w: %s without subscription id", ErrBadEvent, name)
		}
		if ev.Payment == nil {
			return Event{}, fmt.Errorf("%w: %s without payment id", ErrBadEvent, name)
		}
		if ev.Payment.Amount < 0 {
			return Event{}, fmt.Errorf("%w: negative amount %d for payment %s", ErrBadEvent, ev.Payment.Amount, ev.Payment.ID)
		}
	case EventPaymentFailed:
		// The subscription is optional; without it the event is a no-op.
	case EventUnknown:
	default:
		return Event{}, fmt.Errorf("%w: unhandled kind %d", ErrBadEvent, ev.Kind)
	}
	return ev, nil
}
