package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nutriplano/internal/model"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature is returned when a webhook payload fails Stripe signature verification.
var ErrInvalidSignature = errors.New("invalid stripe signature")

// EventKind is the closed set of webhook events the reconciler acts on.
type EventKind int

const (
	EventUnhandled EventKind = iota
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventCheckoutCompleted
)

func (k EventKind) String() string {
	switch k {
	case EventSubscriptionCreated:
		return "subscription_created"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	case EventCheckoutCompleted:
		return "checkout_completed"
	default:
		return "unhandled"
	}
}

// IsSubscription reports whether the kind carries a subscription object.
func (k EventKind) IsSubscription() bool {
	return k == EventSubscriptionCreated || k == EventSubscriptionUpdated || k == EventSubscriptionDeleted
}

// Classify maps a Stripe event type onto an EventKind. Unknown types map to EventUnhandled.
func Classify(t stripe.EventType) EventKind {
	switch t {
	case stripe.EventTypeCustomerSubscriptionCreated:
		return EventSubscriptionCreated
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return EventSubscriptionUpdated
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return EventSubscriptionDeleted
	case stripe.EventTypeCheckoutSessionCompleted:
		return EventCheckoutCompleted
	default:
		return EventUnhandled
	}
}

// VerifyEvent checks the Stripe-Signature header against the raw payload and
// decodes the event. The payload must be the exact bytes received.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// EventTime returns the creation time of the event as reported by Stripe.
func EventTime(event stripe.Event) time.Time {
	return time.Unix(event.Created, 0).UTC()
}

// PlanForStatus converts a subscription status into an entitlement.
// Only active and trialing subscriptions grant premium.
func PlanForStatus(status stripe.SubscriptionStatus) model.Plan {
	switch stripe.SubscriptionStatus(strings.ToLower(strings.TrimSpace(string(status)))) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.PlanPremium
	default:
		return model.PlanFree
	}
}

// DecodeSubscription unmarshals the subscription object of a customer.subscription.* event.
func DecodeSubscription(event stripe.Event) (*stripe.Subscription, error) {
	if event.Data == nil {
		return nil, errors.New("event has no data object")
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	return &sub, nil
}

// DecodeCheckoutSession unmarshals the session object of a checkout.session.* event.
func DecodeCheckoutSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	if event.Data == nil {
		return nil, errors.New("event has no data object")
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout.session: %w", err)
	}
	return &cs, nil
}

// SubscriptionUserID returns the internal user id stamped on the subscription at checkout.
func SubscriptionUserID(sub *stripe.Subscription) string {
	return strings.TrimSpace(sub.Metadata[MetadataUserID])
}

// CheckoutUserID resolves the owner of a checkout session: metadata first,
// then the client reference id.
func CheckoutUserID(cs *stripe.CheckoutSession) string {
	if userID := strings.TrimSpace(cs.Metadata[MetadataUserID]); userID != "" {
		return userID
	}
	return strings.TrimSpace(cs.ClientReferenceID)
}

// CheckoutCustomerID returns the Stripe customer the session was paid by, if any.
func CheckoutCustomerID(cs *stripe.CheckoutSession) string {
	if cs.Customer == nil {
		return ""
	}
	return strings.TrimSpace(cs.Customer.ID)
}

// FirstPriceID returns the price of the first subscription item.
func FirstPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}
