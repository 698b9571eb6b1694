package marketdata

import (
	"fmt"
	"net/http"
)

// Authenticator decorates outgoing provider requests with credentials.
type Authenticator interface {
	AddAuthHeaders(req *http.Request) error
}

// BearerAuthenticator sends an OAuth style access token (Tradier).
type BearerAuthenticator struct {
	token string
}

func NewBearerAuthenticator(token string) *BearerAuthenticator {
	return &BearerAuthenticator{token: token}
}

func (b *BearerAuthenticator) AddAuthHeaders(req *http.Request) error {
	if b.token == "" {
		return fmt.Errorf("missing access token")
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}

// KeyAuthenticator sends an API key pair in headers (Alpaca).
type KeyAuthenticator struct {
	keyHeader    string
	secretHeader string
	apiKey       string
	apiSecret    string
}

func NewAlpacaAuthenticator(apiKey, apiSecret string) *KeyAuthenticator {
	return &KeyAuthenticator{
		keyHeader:    "APCA-API-KEY-ID",
		secretHeader: "APCA-API-SECRET-KEY",
		apiKey:       apiKey,
		apiSecret:    apiSecret,
	}
}

func (k *KeyAuthenticator) AddAuthHeaders(req *http.Request) error {
	if k.apiKey == "" || k.apiSecret == "" {
		return fmt.Errorf("missing API key pair")
	}
	req.Header.Set(k.keyHeader, k.apiKey)
	req.Header.Set(k.secretHeader, k.apiSecret)
	return nil
}
