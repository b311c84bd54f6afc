package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"nutriplano/internal/billing"
	"nutriplano/internal/config"
	"nutriplano/internal/metrics"
	"nutriplano/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrPriceNotConfigured = errors.New("no price configured for checkout")
	ErrPriceNotAllowed    = errors.New("price is not offered")
	ErrUpstream           = errors.New("payment provider unavailable")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrNoBillingAccount   = errors.New("user has no billing account")
)

// Caller is the authenticated user starting a checkout.
type Caller struct {
	UserID string
	Email  string
}

// CheckoutService starts Stripe hosted flows for a user. It never writes
// entitlements; those only change through webhooks.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, caller Caller, priceID string) (*billing.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, caller Caller) (string, error)
}

type checkoutService struct {
	cfg     *config.Config
	repo    repository.ProfileRepository
	gateway billing.Gateway
	logger  zerolog.Logger
}

// NewCheckoutService creates a new CheckoutService with a scoped logger.
func NewCheckoutService(cfg *config.Config, repo repository.ProfileRepository, gateway billing.Gateway, logger zerolog.Logger) CheckoutService {
	return &checkoutService{
		cfg:     cfg,
		repo:    repo,
		gateway: gateway,
		logger:  logger.With().Str("service", "CheckoutService").Logger(),
	}
}

func (s *checkoutService) CreateCheckoutSession(ctx context.Context, caller Caller, priceID string) (*billing.CheckoutSession, error) {
	if caller.UserID == "" {
		return nil, ErrUnauthenticated
	}
	price, err := s.resolvePrice(priceID)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn().Err(err).Str("user_id", caller.UserID).Str("price_id", priceID).Msg("Checkout price rejected")
		return nil, err
	}

	profile, err := s.repo.GetProfileByID(ctx, caller.UserID)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("Failed to fetch profile for checkout session")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	req := billing.CheckoutRequest{
		UserID:     caller.UserID,
		PriceID:    price,
		SuccessURL: s.cfg.CheckoutSuccessURL(),
		CancelURL:  s.cfg.CheckoutCancelURL(),
	}
	if profile != nil && profile.HasBillingAccount() {
		req.CustomerID = *profile.StripeCustomerID
	} else {
		req.Email = caller.Email
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("user_id", caller.UserID).Str("price_id", price).Msg("Failed to create Stripe checkout session")
		return nil, ErrUpstream
	}
	metrics.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	s.logger.Info().Str("user_id", caller.UserID).Str("price_id", price).Str("session_id", sess.ID).Msg("Checkout session created")
	return sess, nil
}

// resolvePrice picks the requested price or the configured default and checks
// it against the allow list.
func (s *checkoutService) resolvePrice(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	price := requested
	if price == "" {
		price = s.cfg.StripePricePremium
	}
	if price == "" {
		return "", ErrPriceNotConfigured
	}
	if requested == "" || requested == s.cfg.StripePricePremium {
		return price, nil
	}
	if len(s.cfg.StripeAllowedPrices) > 0 && !slices.Contains(s.cfg.StripeAllowedPrices, price) {
		return "", fmt.Errorf("%w: %s", ErrPriceNotAllowed, price)
	}
	return price, nil
}

func (s *checkoutService) CreatePortalSession(ctx context.Context, caller Caller) (string, error) {
	if caller.UserID == "" {
		return "", ErrUnauthenticated
	}
	profile, err := s.repo.GetProfileByID(ctx, caller.UserID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("Failed to fetch profile for portal session")
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if profile == nil || !profile.HasBillingAccount() {
		return "", ErrNoBillingAccount
	}
	url, err := s.gateway.CreatePortalSession(ctx, *profile.StripeCustomerID, s.cfg.PortalReturnURL())
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("Failed to create Stripe billing portal session")
		return "", ErrUpstream
	}
	return url, nil
}
