package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBConnectionString string `envconfig:"DB_CONNECTION_STRING" required:"true"`
	JWTSecret          string `envconfig:"SUPABASE_JWT_SECRET" required:"true"`

	// Stripe settings
	StripeSecretKey     string   `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string   `envconfig:"STRIPE_WEBHOOK_SIGNING_SECRET" required:"true"`
	StripePricePremium  string   `envconfig:"STRIPE_PRICE_PREMIUM"`
	StripeAllowedPrices []string `envconfig:"STRIPE_ALLOWED_PRICES"`

	// SiteURL is the frontend base used for checkout and portal redirects.
	SiteURL string `envconfig:"SITE_URL" required:"true"`

	// When set, subscription events older than the last applied one are ignored.
	EntitlementOrderingGuard bool `envconfig:"ENTITLEMENT_ORDERING_GUARD" default:"true"`

	// Entitlement change notifications (optional)
	GCPProjectID     string `envconfig:"GCP_PROJECT_ID"`
	EntitlementTopic string `envconfig:"ENTITLEMENT_TOPIC"`
	// Local development only
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &cfg, nil
}

// CheckoutSuccessURL is where Stripe sends the user after a completed payment.
func (c *Config) CheckoutSuccessURL() string {
	return c.SiteURL + "/pagamento/sucesso"
}

// CheckoutCancelURL is where Stripe sends the user after abandoning checkout.
func (c *Config) CheckoutCancelURL() string {
	return c.SiteURL + "/pagamento/cancelado"
}

func (c *Config) PortalReturnURL() string {
	return c.SiteURL + "/perfil"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
