package db

import "time"

// Plan is the local catalogue entry a subscription is billed under.
type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanBasic   Plan = "BASIC"
	PlanPro     Plan = "PRO"
	PlanPremium Plan = "PREMIUM"
)

// ParsePlan accepts the canonical upper-case plan names only.
func ParsePlan(s string) (Plan, bool) {
	switch p := Plan(s); p {
	case PlanFree, PlanBasic, PlanPro, PlanPremium:
		return p, true
	}
	return "", false
}

// Paid reports whether the plan is billed by the provider.
func (p Plan) Paid() bool { return p == PlanBasic || p == PlanPro || p == PlanPremium }

// Status mirrors the provider's view of a subscription.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusTrialing Status = "TRIALING"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Subscription is the single billing record owned by a user.
// ProviderSubscriptionID is empty until checkout has been started.
type Subscription struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"userId"`
	ProviderSubscriptionID string     `json:"providerSubscriptionId,omitempty"`
	Plan                   Plan       `json:"plan"`
	Status                 Status     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"currentPeriodEnd"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// HoldsPaidPlan reports whether the subscription is a confirmed paid plan
// that a new checkout must not replace. TRIALING (checkout pending) and
// CANCELED rows may be overwritten.
func (s Subscription) HoldsPaidPlan() bool {
	return s.Plan.Paid() && (s.Status == StatusActive || s.Status == StatusPastDue)
}

// Entitled reports whether the subscription unlocks paid features.
func (s Subscription) Entitled() bool {
	return s.Plan.Paid() && (s.Status == StatusActive || s.Status == StatusTrialing)
}

// Owned pairs a subscription with its owner's address for notifications.
type Owned struct {
	Subscription
	OwnerEmail string
}

// Payment is an immutable ledger row. Amount is in minor currency units.
type Payment struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	ProviderPaymentID string    `json:"providerPaymentId"`
	CreatedAt         time.Time `json:"createdAt"`
}
