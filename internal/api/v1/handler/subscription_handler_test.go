package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nutriplano/internal/api/v1/dto"
	"nutriplano/internal/config"
	"nutriplano/internal/middleware"
	"nutriplano/internal/model"
	"nutriplano/internal/service"
	"nutriplano/internal/testutil"
	"nutriplano/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

type subscriptionFixture struct {
	mux   *http.ServeMux
	store *testutil.ProfileStore
	gw    *testutil.Gateway
}

func newSubscriptionFixture(t *testing.T, profiles ...model.Profile) *subscriptionFixture {
	t.Helper()
	cfg := &config.Config{
		SiteURL:            "https://nutriplano.app",
		StripePricePremium: "price_premium_monthly",
	}
	store := testutil.NewProfileStore(profiles...)
	gw := &testutil.Gateway{}
	checkoutSvc := service.NewCheckoutService(cfg, store, gw, zerolog.Nop())
	entitlementSvc := service.NewEntitlementService(store, nil, "", true, zerolog.Nop())

	h := NewSubscriptionHandler(checkoutSvc, entitlementSvc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, middleware.AuthMiddleware(testJWTSecret, zerolog.Nop()))
	return &subscriptionFixture{mux: mux, store: store, gw: gw}
}

func bearer(t *testing.T, userID, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, util.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestCheckoutRequiresAuthentication(t *testing.T) {
	f := newSubscriptionFixture(t, model.Profile{UserID: "u1", Plano: model.PlanFree})

	for name, header := range map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic dXNlcjpwYXNz",
		"garbage token": "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", bytes.NewBufferString(`{}`))
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rr := serve(f.mux, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
	assert.Zero(t, f.gw.Calls())
}

func TestCheckoutCreatesSession(t *testing.T) {
	f := newSubscriptionFixture(t, model.Profile{UserID: "u1", Plano: model.PlanFree})

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", bytes.NewBufferString(`{"priceId":"price_premium_monthly"}`))
	req.Header.Set("Authorization", bearer(t, "u1", "ana@example.com"))
	rr := serve(f.mux, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp dto.SubscriptionCheckoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.NotEmpty(t, resp.URL)

	require.Len(t, f.gw.CheckoutCalls, 1)
	assert.Equal(t, "u1", f.gw.CheckoutCalls[0].UserID)
	assert.Equal(t, "ana@example.com", f.gw.CheckoutCalls[0].Email)

	p, _ := f.store.Profile("u1")
	assert.Equal(t, model.PlanFree, p.Plano)
}

func TestCheckoutEmptyBodyUsesDefaultPrice(t *testing.T) {
	f := newSubscriptionFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", nil)
	req.Header.Set("Authorization", bearer(t, "u1", "ana@example.com"))
	rr := serve(f.mux, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "price_premium_monthly", f.gw.CheckoutCalls[0].PriceID)
}

func TestCheckoutErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", bytes.NewBufferString(`{"priceId":`))
		req.Header.Set("Authorization", bearer(t, "u1", ""))
		rr := serve(f.mux, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid price id", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", bytes.NewBufferString(`{"priceId":"prod_123"}`))
		req.Header.Set("Authorization", bearer(t, "u1", ""))
		rr := serve(f.mux, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Zero(t, f.gw.Calls())
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newSubscriptionFixture(t)
		f.gw.Err = errors.New("stripe: api_key invalid sk_live_xxx")
		req := httptest.NewRequest(http.MethodPost, "/subscriptions/checkout", nil)
		req.Header.Set("Authorization", bearer(t, "u1", ""))
		rr := serve(f.mux, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "could not start payment", resp.Error)
		assert.NotContains(t, rr.Body.String(), "sk_live")
	})
}

func TestMe(t *testing.T) {
	customer := "cus_1"
	f := newSubscriptionFixture(t, model.Profile{UserID: "u1", Plano: model.PlanPremium, StripeCustomerID: &customer})

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/me", nil)
	req.Header.Set("Authorization", bearer(t, "u1", ""))
	rr := serve(f.mux, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.EntitlementResponseDTO
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "premium", resp.Plano)
	assert.True(t, resp.HasBillingAccount)

	req = httptest.NewRequest(http.MethodGet, "/subscriptions/me", nil)
	req.Header.Set("Authorization", bearer(t, "nobody", ""))
	rr = serve(f.mux, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPortal(t *testing.T) {
	customer := "cus_1"
	f := newSubscriptionFixture(t,
		model.Profile{UserID: "linked", Plano: model.PlanPremium, StripeCustomerID: &customer},
		model.Profile{UserID: "fresh", Plano: model.PlanFree},
	)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions/portal", nil)
	req.Header.Set("Authorization", bearer(t, "linked", ""))
	rr := serve(f.mux, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.SubscriptionPortalResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.URL)

	req = httptest.NewRequest(http.MethodPost, "/subscriptions/portal", nil)
	req.Header.Set("Authorization", bearer(t, "fresh", ""))
	rr = serve(f.mux, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
