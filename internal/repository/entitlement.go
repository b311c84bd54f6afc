package repository

import (
	"time"

	"nutriplano/internal/model"
)

// EntitlementUpdate is one webhook's intended write to a profile row.
type EntitlementUpdate struct {
	UserID string
	Plan   model.Plan
	// StripeCustomerID is linked only when the row has none yet.
	StripeCustomerID string
	// EventAt is the Stripe event creation time, stored as the last applied marker.
	EventAt time.Time
	// EnforceOrdering drops plan changes from events older than the stored marker.
	EnforceOrdering bool
}

// EntitlementResult describes what an update did to the row.
type EntitlementResult struct {
	Previous       model.Plan
	Current        model.Plan
	Stale          bool
	CustomerLinked bool
}

// Changed reports whether the plan moved.
func (r *EntitlementResult) Changed() bool {
	return r.Previous != r.Current
}

// ResolveEntitlement computes the next row state from the current one. It is
// pure so the same rule backs every ProfileRepository implementation.
func ResolveEntitlement(current model.Profile, u EntitlementUpdate) (model.Profile, EntitlementResult) {
	next := current
	res := EntitlementResult{Previous: current.Plano, Current: current.Plano}

	stale := u.EnforceOrdering &&
		current.StripeEventAt != nil &&
		!u.EventAt.IsZero() &&
		u.EventAt.Before(*current.StripeEventAt)

	if stale {
		res.Stale = true
	} else {
		next.Plano = u.Plan
		res.Current = u.Plan
		if !u.EventAt.IsZero() {
			at := u.EventAt
			next.StripeEventAt = &at
		}
	}

	if u.StripeCustomerID != "" && !current.HasBillingAccount() {
		id := u.StripeCustomerID
		next.StripeCustomerID = &id
		res.CustomerLinked = true
	}
	return next, res
}
