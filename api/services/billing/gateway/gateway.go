package gateway

//go:generate mockgen -destination=mock/mock_gateway.go -package=mock github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway ProviderGateway

import "context"

// Customer identifies the local owner of a provider subscription.
type Customer struct {
	UserID string
	Email  string
}

// ProviderGateway abstracts the payment provider operations needed by the
// command API. Calls are remote and must honour ctx deadlines.
type ProviderGateway interface {
	// CreateSubscription starts a subscription on providerPlanID and returns
	// the provider-assigned subscription id.
	CreateSubscription(ctx context.Context, providerPlanID string, customer Customer) (string, error)
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}
