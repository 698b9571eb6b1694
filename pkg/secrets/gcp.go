package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/sirupsen/logrus"
)

// Source resolves named secrets. GCPSecretManager is the production
// implementation.
type Source interface {
	GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string
}

type GCPSecretManager struct {
	client    *secretmanager.Client
	projectID string
	logger    *logrus.Logger
}

func NewGCPSecretManager(ctx context.Context, projectID string, logger *logrus.Logger) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName),
	}

	result, err := g.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}
	return string(result.Payload.Data), nil
}

func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	if secretName == "" {
		return defaultValue
	}
	value, err := g.GetSecret(ctx, secretName)
	if err != nil {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

// SecretNames maps each credential to its Secret Manager secret id.
type SecretNames struct {
	TradierToken      string `mapstructure:"tradier_token" yaml:"tradier_token"`
	AlpacaAPIKey      string `mapstructure:"alpaca_api_key" yaml:"alpaca_api_key"`
	AlpacaAPISecret   string `mapstructure:"alpaca_api_secret" yaml:"alpaca_api_secret"`
	JWTSecret         string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	SheetsCredentials string `mapstructure:"sheets_credentials" yaml:"sheets_credentials"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		TradierToken:      "synthlong-tradier-token",
		AlpacaAPIKey:      "synthlong-alpaca-api-key",
		AlpacaAPISecret:   "synthlong-alpaca-api-secret",
		JWTSecret:         "synthlong-jwt-secret",
		SheetsCredentials: "synthlong-sheets-credentials",
	}
}
