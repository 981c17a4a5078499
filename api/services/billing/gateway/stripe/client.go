package stripegw

import (
	"context"
	"errors"

	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/customer"
	"github.com/stripe/stripe-go/sub"

	gw "github.com/tbeaudouin05/billing-reconciler/api/services/billing/gateway"
)

// SetKey configures the Stripe SDK key once during bootstrap.
func SetKey(key string) { stripe.Key = key }

// client is the Stripe SDK-backed implementation of the gateway.
type client struct{}

// New returns a ProviderGateway backed by the official Stripe SDK.
func New() gw.ProviderGateway { return client{} }

// CreateSubscription creates a customer carrying the local user id and
// subscribes it to the plan. The first invoice is left for checkout to pay.
func (client) CreateSubscription(ctx context.Context, providerPlanID string, c gw.Customer) (string, error) {
	custParams := &stripe.CustomerParams{Email: stripe.String(c.Email)}
	custParams.Context = ctx
	custParams.AddMetadata("user_id", c.UserID)
	cust, err := customer.New(custParams)
	if err != nil {
		return "", err
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(cust.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{Plan: stripe.String(providerPlanID)},
		},
	}
	subParams.Context = ctx
	subParams.AddMetadata("user_id", c.UserID)
	subParams.AddMetadata("user_email", c.Email)
	created, err := sub.New(subParams)
	if err != nil {
		return "", err
	}
	if created == nil || created.ID == "" {
		return "", errors.New("stripe returned an empty subscription")
	}
	return created.ID, nil
}

func (client) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := sub.Cancel(providerSubscriptionID, params)
	return err
}
