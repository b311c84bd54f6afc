package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"nutriplano/internal/api/v1/dto"
	"nutriplano/internal/middleware"
	"nutriplano/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const checkoutBodyLimit = 64 * 1024

// SubscriptionHandler handles subscription-related endpoints.
type SubscriptionHandler struct {
	checkoutSvc    service.CheckoutService
	entitlementSvc service.EntitlementService
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(checkoutSvc service.CheckoutService, entitlementSvc service.EntitlementService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		checkoutSvc:    checkoutSvc,
		entitlementSvc: entitlementSvc,
		validate:       validate,
		logger:         logger,
	}
}

// RegisterRoutes registers the subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("POST /subscriptions/checkout", authMiddleware(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /subscriptions/portal", authMiddleware(http.HandlerFunc(h.Portal)))
	mux.Handle("GET /subscriptions/me", authMiddleware(http.HandlerFunc(h.Me)))
}

// Checkout godoc
// @Summary Initiate a Stripe Checkout session for the premium plan
// @Description Creates a subscription-mode Stripe Checkout session tagged with the caller's user id. The plan only changes once Stripe confirms payment through the webhook.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.SubscriptionCheckoutRequest false "Subscription checkout request"
// @Success 200 {object} dto.SubscriptionCheckoutResponse
// @Failure 400 {object} dto.ErrorResponse "invalid request payload"
// @Failure 401 {object} dto.ErrorResponse "unauthorized"
// @Failure 500 {object} dto.ErrorResponse "payment is not configured"
// @Failure 502 {object} dto.ErrorResponse "could not start payment"
// @Router /subscriptions/checkout [post]
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dto.SubscriptionCheckoutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, checkoutBodyLimit)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid priceId")
		return
	}

	sess, err := h.checkoutSvc.CreateCheckoutSession(r.Context(), caller, req.PriceID)
	if err != nil {
		status, msg := checkoutErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("Failed to create checkout session")
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubscriptionCheckoutResponse{SessionID: sess.ID, URL: sess.URL})
}

// Portal godoc
// @Summary Create a Stripe Customer Portal session
// @Description Generates a Stripe Customer Portal session URL for a user with a linked billing account.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionPortalResponse
// @Failure 401 {object} dto.ErrorResponse "unauthorized"
// @Failure 404 {object} dto.ErrorResponse "no billing account"
// @Failure 502 {object} dto.ErrorResponse "could not open billing portal"
// @Router /subscriptions/portal [post]
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	url, err := h.checkoutSvc.CreatePortalSession(r.Context(), caller)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, dto.SubscriptionPortalResponse{URL: url})
	case errors.Is(err, service.ErrNoBillingAccount):
		writeError(w, http.StatusNotFound, "no billing account")
	case errors.Is(err, service.ErrUpstream):
		writeError(w, http.StatusBadGateway, "could not open billing portal")
	default:
		h.logger.Error().Err(err).Str("user_id", caller.UserID).Msg("Failed to create portal session")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Me godoc
// @Summary Get the caller's current plan
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.EntitlementResponseDTO
// @Failure 401 {object} dto.ErrorResponse "unauthorized"
// @Failure 404 {object} dto.ErrorResponse "profile not found"
// @Router /subscriptions/me [get]
func (h *SubscriptionHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.entitlementSvc.GetEntitlement(r.Context(), caller.UserID)
	if err != nil {
		if errors.Is(err, service.ErrProfileNotFound) {
			writeError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, dto.EntitlementResponseDTO{
		Plano:             string(p.Plano),
		HasBillingAccount: p.HasBillingAccount(),
	})
}

func callerFromRequest(r *http.Request) (service.Caller, bool) {
	userID, email, ok := middleware.UserFromContext(r.Context())
	return service.Caller{UserID: userID, Email: email}, ok
}

// checkoutErrorStatus maps service errors to a status and a client-safe message.
func checkoutErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, service.ErrPriceNotAllowed):
		return http.StatusBadRequest, "price is not offered"
	case errors.Is(err, service.ErrPriceNotConfigured):
		return http.StatusInternalServerError, "payment is not configured"
	case errors.Is(err, service.ErrUpstream):
		return http.StatusBadGateway, "could not start payment"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
