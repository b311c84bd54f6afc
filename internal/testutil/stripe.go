package testutil

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nutriplano/internal/billing"

	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookSecret is the signing secret used by SignedWebhookRequest.
const WebhookSecret = "whsec_test_secret"

// SubscriptionEvent renders a customer.subscription.* event body.
func SubscriptionEvent(eventID, eventType, userID, status string, created int64) string {
	metadata := `{}`
	if userID != "" {
		metadata = fmt.Sprintf(`{"user_id":%q}`, userID)
	}
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":{"id":"sub_%s","object":"subscription","status":%q,"customer":"cus_%s","metadata":%s}}}`,
		eventID, eventType, created, eventID, status, eventID, metadata)
}

// CheckoutCompletedEvent renders a checkout.session.completed event body.
func CheckoutCompletedEvent(eventID, userID, clientReference, customerID string, created int64) string {
	metadata := `{}`
	if userID != "" {
		metadata = fmt.Sprintf(`{"user_id":%q}`, userID)
	}
	customer := `null`
	if customerID != "" {
		customer = fmt.Sprintf("%q", customerID)
	}
	return fmt.Sprintf(`{"id":%q,"object":"event","type":"checkout.session.completed","created":%d,"data":{"object":{"id":"cs_%s","object":"checkout.session","mode":"subscription","client_reference_id":%q,"customer":%s,"metadata":%s}}}`,
		eventID, created, eventID, clientReference, customer, metadata)
}

// SignPayload signs payload the way Stripe does for WebhookSecret.
func SignPayload(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    WebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

// SignedWebhookRequest builds a POST with a valid Stripe-Signature header.
func SignedWebhookRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	body, header := SignPayload(t, payload)
	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// Gateway is a billing.Gateway that records calls.
type Gateway struct {
	mu             sync.Mutex
	CheckoutCalls  []billing.CheckoutRequest
	PortalCalls    []string
	CheckoutResult *billing.CheckoutSession
	PortalURL      string
	Err            error
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CheckoutCalls = append(g.CheckoutCalls, req)
	if g.Err != nil {
		return nil, g.Err
	}
	if g.CheckoutResult != nil {
		return g.CheckoutResult, nil
	}
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (g *Gateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PortalCalls = append(g.PortalCalls, customerID)
	if g.Err != nil {
		return "", g.Err
	}
	if g.PortalURL != "" {
		return g.PortalURL, nil
	}
	return "https://billing.stripe.com/p/session/test_1", nil
}

// Calls returns the number of checkout sessions requested.
func (g *Gateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.CheckoutCalls)
}

// Publisher is a pubsub.Publisher that records messages.
type Publisher struct {
	mu       sync.Mutex
	Messages []PublishedMessage
	Err      error
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
	Attrs   map[string]string
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.Messages = append(p.Messages, PublishedMessage{Topic: topic, Payload: payload, Attrs: attrs})
	return fmt.Sprintf("msg-%d", len(p.Messages)), nil
}

func (p *Publisher) Published() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedMessage(nil), p.Messages...)
}
