package dto

// SubscriptionCheckoutRequest starts a Stripe Checkout session. An empty
// priceId uses the server's default premium price.
type SubscriptionCheckoutRequest struct {
	PriceID string `json:"priceId" validate:"omitempty,startswith=price_,max=255"`
}

type SubscriptionCheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type SubscriptionPortalResponse struct {
	URL string `json:"url"`
}

// EntitlementResponseDTO is the caller's current plan.
type EntitlementResponseDTO struct {
	Plano             string `json:"plano"`
	HasBillingAccount bool   `json:"hasBillingAccount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type WebhookReceivedResponse struct {
	Received bool `json:"received"`
}
