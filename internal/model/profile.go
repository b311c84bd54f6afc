package model

import "time"

// Plan is the access tier stored in profiles.plano.
type Plan string

const (
	PlanFree    Plan = "gratuito"
	PlanPremium Plan = "premium"
)

func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPremium
}

// Profile is the billing subset of a user's profile row.
type Profile struct {
	UserID           string     `db:"id" json:"id"`
	Plano            Plan       `db:"plano" json:"plano"`
	StripeCustomerID *string    `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeEventAt    *time.Time `db:"stripe_event_at" json:"stripe_event_at,omitempty"`
}

// HasBillingAccount reports whether the user has been linked to a Stripe customer.
func (p *Profile) HasBillingAccount() bool {
	return p.StripeCustomerID != nil && *p.StripeCustomerID != ""
}

// EntitlementChange is published whenever a webhook moves a user between plans.
type EntitlementChange struct {
	UserID     string    `json:"user_id"`
	Previous   Plan      `json:"previous"`
	Current    Plan      `json:"current"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}
