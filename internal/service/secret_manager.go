package service

import (
	"context"
	"fmt"
	"strings"

	"nutriplano/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretRefPrefix marks a config value that names a Secret Manager secret instead of holding it.
const SecretRefPrefix = "sm://"

// SecretResolver fetches the latest version of a named secret.
type SecretResolver interface {
	AccessSecret(ctx context.Context, name string) (string, error)
}

// SecretManagerService resolves secrets from Google Secret Manager.
type SecretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerService creates a Secret Manager backed resolver for projectID.
func NewSecretManagerService(ctx context.Context, projectID string) (*SecretManagerService, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project id is required to resolve %s secrets", SecretRefPrefix)
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &SecretManagerService{client: client, projectID: projectID}, nil
}

func (s *SecretManagerService) AccessSecret(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

func (s *SecretManagerService) Close() error {
	return s.client.Close()
}

// HasSecretRefs reports whether any secret-bearing config value is an sm:// reference.
func HasSecretRefs(cfg *config.Config) bool {
	for _, v := range secretFields(cfg) {
		if strings.HasPrefix(*v, SecretRefPrefix) {
			return true
		}
	}
	return false
}

// ResolveConfigSecrets replaces every sm:// reference in cfg with the secret's value.
func ResolveConfigSecrets(ctx context.Context, cfg *config.Config, resolver SecretResolver) error {
	for _, v := range secretFields(cfg) {
		name, ok := strings.CutPrefix(*v, SecretRefPrefix)
		if !ok {
			continue
		}
		value, err := resolver.AccessSecret(ctx, name)
		if err != nil {
			return err
		}
		*v = strings.TrimSpace(value)
	}
	return nil
}

func secretFields(cfg *config.Config) []*string {
	return []*string{
		&cfg.DBConnectionString,
		&cfg.JWTSecret,
		&cfg.StripeSecretKey,
		&cfg.StripeWebhookSecret,
	}
}
