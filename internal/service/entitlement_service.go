package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nutriplano/internal/billing"
	"nutriplano/internal/metrics"
	"nutriplano/internal/model"
	"nutriplano/internal/pubsub"
	"nutriplano/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

var (
	// ErrAttribution means the event cannot be mapped to an internal user.
	ErrAttribution = errors.New("cannot attribute event to a user")
	// ErrStorage means the profile write did not apply.
	ErrStorage = errors.New("profile store unavailable")
	// ErrMalformedEvent means the verified event body could not be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// ReconcileOutcome summarises what one webhook delivery did.
type ReconcileOutcome struct {
	Kind   billing.EventKind
	UserID string
	// Result is nil for unhandled event kinds.
	Result *repository.EntitlementResult
}

// EntitlementService keeps profiles.plano in line with Stripe.
type EntitlementService interface {
	// Reconcile applies one verified Stripe event. Any returned error must be
	// answered with a non-2xx status so Stripe redelivers.
	Reconcile(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error)
	GetEntitlement(ctx context.Context, userID string) (*model.Profile, error)
}

type entitlementService struct {
	repo            repository.ProfileRepository
	publisher       pubsub.Publisher
	topic           string
	enforceOrdering bool
	logger          zerolog.Logger
}

// NewEntitlementService creates a new EntitlementService. publisher may be nil
// or topic empty to disable change notifications.
func NewEntitlementService(repo repository.ProfileRepository, publisher pubsub.Publisher, topic string, enforceOrdering bool, logger zerolog.Logger) EntitlementService {
	return &entitlementService{
		repo:            repo,
		publisher:       publisher,
		topic:           topic,
		enforceOrdering: enforceOrdering,
		logger:          logger.With().Str("service", "EntitlementService").Logger(),
	}
}

func (s *entitlementService) Reconcile(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	kind := billing.Classify(event.Type)
	lg := s.logger.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()

	switch {
	case kind.IsSubscription():
		sub, err := billing.DecodeSubscription(event)
		if err != nil {
			lg.Error().Err(err).Msg("Invalid subscription payload")
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		userID := billing.SubscriptionUserID(sub)
		if userID == "" {
			lg.Error().Str("subscription_id", sub.ID).Msg("Missing user_id in subscription metadata")
			return nil, fmt.Errorf("%w: subscription %s has no user_id metadata", ErrAttribution, sub.ID)
		}
		plan := billing.PlanForStatus(sub.Status)
		lg.Info().
			Str("user_id", userID).
			Str("subscription_id", sub.ID).
			Str("status", string(sub.Status)).
			Str("price_id", billing.FirstPriceID(sub)).
			Str("plan", string(plan)).
			Msg("Applying subscription status")
		return s.apply(ctx, event, kind, repository.EntitlementUpdate{
			UserID: userID,
			Plan:   plan,
		})

	case kind == billing.EventCheckoutCompleted:
		cs, err := billing.DecodeCheckoutSession(event)
		if err != nil {
			lg.Error().Err(err).Msg("Invalid checkout.session payload")
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		userID := billing.CheckoutUserID(cs)
		if userID == "" {
			lg.Error().Str("session_id", cs.ID).Msg("Missing user_id in checkout session metadata and client reference")
			return nil, fmt.Errorf("%w: checkout session %s has no user_id", ErrAttribution, cs.ID)
		}
		customerID := billing.CheckoutCustomerID(cs)
		lg.Info().Str("user_id", userID).Str("session_id", cs.ID).Str("stripe_customer_id", customerID).Msg("Applying completed checkout")
		return s.apply(ctx, event, kind, repository.EntitlementUpdate{
			UserID:           userID,
			Plan:             model.PlanPremium,
			StripeCustomerID: customerID,
		})

	default:
		lg.Info().Msg("Stripe webhook ignored (unhandled type)")
		return &ReconcileOutcome{Kind: billing.EventUnhandled}, nil
	}
}

func (s *entitlementService) apply(ctx context.Context, event stripe.Event, kind billing.EventKind, u repository.EntitlementUpdate) (*ReconcileOutcome, error) {
	u.EventAt = billing.EventTime(event)
	u.EnforceOrdering = s.enforceOrdering

	res, err := s.repo.ApplyEntitlement(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			s.logger.Error().Str("event_id", event.ID).Str("user_id", u.UserID).Msg("No profile row for event owner")
			return nil, fmt.Errorf("%w: no profile for user %s", ErrAttribution, u.UserID)
		}
		s.logger.Error().Err(err).Str("event_id", event.ID).Str("user_id", u.UserID).Msg("Failed to apply entitlement")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	outcome := "unchanged"
	switch {
	case res.Stale:
		outcome = "stale"
		s.logger.Warn().
			Str("event_id", event.ID).
			Str("user_id", u.UserID).
			Time("event_at", u.EventAt).
			Msg("Ignoring out-of-order Stripe event")
	case res.Changed():
		outcome = "applied"
		s.notify(ctx, event, u.UserID, res)
	}
	metrics.EntitlementUpdatesTotal.WithLabelValues(string(res.Current), outcome).Inc()

	return &ReconcileOutcome{Kind: kind, UserID: u.UserID, Result: res}, nil
}

// notify publishes a plan transition. Failures are logged only: the profile
// row is already the source the app reads.
func (s *entitlementService) notify(ctx context.Context, event stripe.Event, userID string, res *repository.EntitlementResult) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	change := model.EntitlementChange{
		UserID:     userID,
		Previous:   res.Previous,
		Current:    res.Current,
		EventID:    event.ID,
		EventType:  string(event.Type),
		OccurredAt: billing.EventTime(event),
	}
	payload, err := json.Marshal(change)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to encode entitlement change")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload, map[string]string{"plan": string(res.Current)}); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("topic", s.topic).Msg("Failed to publish entitlement change")
	}
}

func (s *entitlementService) GetEntitlement(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.repo.GetProfileByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch profile")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	return p, nil
}
