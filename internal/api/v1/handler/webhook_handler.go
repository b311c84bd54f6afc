package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nutriplano/internal/api/v1/dto"
	"nutriplano/internal/billing"
	"nutriplano/internal/metrics"
	"nutriplano/internal/service"

	"github.com/rs/zerolog"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// WebhookHandler receives Stripe events and reconciles profile entitlements.
// Only a 2xx tells Stripe to stop retrying, so every failure to apply an
// event is answered with a non-2xx status.
type WebhookHandler struct {
	secret         string
	entitlementSvc service.EntitlementService
	logger         zerolog.Logger
}

// NewWebhookHandler creates a Stripe webhook HTTP handler.
func NewWebhookHandler(secret string, entitlementSvc service.EntitlementService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:         secret,
		entitlementSvc: entitlementSvc,
		logger:         logger.With().Str("handler", "StripeWebhook").Logger(),
	}
}

// RegisterRoutes registers the webhook endpoint. It is not behind the auth
// middleware; the Stripe signature is the only credential.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/stripe/webhook", h)
}

// ServeHTTP godoc
// @Summary Stripe webhook receiver
// @Description Verifies the Stripe-Signature header and applies subscription and checkout events to the user's plan.
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} dto.WebhookReceivedResponse
// @Failure 400 {object} dto.ErrorResponse "missing or invalid signature"
// @Failure 500 {object} dto.ErrorResponse "processing failed"
// @Router /stripe/webhook [post]
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, status, "method not allowed")
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		writeError(w, status, "webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeError(w, status, "failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		writeError(w, status, "missing Stripe signature")
		return
	}

	event, err := billing.VerifyEvent(payload, sigHeader, h.secret)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Rejected Stripe webhook with invalid signature")
		status = http.StatusBadRequest
		writeError(w, status, "invalid Stripe signature")
		return
	}
	eventType = string(event.Type)

	outcome, err := h.entitlementSvc.Reconcile(r.Context(), event)
	if err != nil {
		lg := h.logger.Error().Err(err).Str("event_id", event.ID).Str("type", eventType)
		if errors.Is(err, service.ErrAttribution) {
			lg = lg.Str("reason", "attribution")
		}
		lg.Msg("Stripe webhook processing failed")
		status = http.StatusInternalServerError
		writeError(w, status, "processing failed")
		return
	}

	if outcome != nil && outcome.Result != nil {
		h.logger.Debug().
			Str("event_id", event.ID).
			Str("user_id", outcome.UserID).
			Str("plan", string(outcome.Result.Current)).
			Bool("stale", outcome.Result.Stale).
			Msg("Stripe webhook processed")
	}
	writeJSON(w, status, dto.WebhookReceivedResponse{Received: true})
}
