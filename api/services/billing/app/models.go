package app

import (
	"time"

	billingdb "github.com/tbeaudouin05/billing-reconciler/api/services/billing/db"
)

// Config is the billing engine's injected configuration.
type Config struct {
	// PlanIDs maps local paid plans to provider plan identifiers.
	PlanIDs map[billingdb.Plan]string
	// PublishableKey is returned to clients to complete checkout.
	PublishableKey string
	// WebhookSecret keys the HMAC over webhook bodies.
	WebhookSecret   string
	ProviderTimeout time.Duration
}

// Checkout is what a client needs to finish paying for a new subscription.
type Checkout struct {
	SubscriptionID string `json:"subscriptionId"`
	PublishableKey string `json:"publishableKey"`
}

// Outcome describes what a webhook delivery did to local state.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeUncorrelated: the provider id matches no local subscription.
	OutcomeUncorrelated Outcome = "uncorrelated"
	// OutcomeIgnored: unknown event kind or an event with nothing to apply.
	OutcomeIgnored Outcome = "ignored"
)
