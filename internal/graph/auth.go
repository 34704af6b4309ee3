package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// graphScope requests all application permissions granted to the client in
// the tenant. Client-credentials tokens cannot carry narrower dynamic scopes.
const graphScope = "https://graph.microsoft.com/.default"

// ErrNoCredentials is returned when tenant ID, client ID or client secret
// is missing from the configuration.
var ErrNoCredentials = errors.New("graph: missing credentials")

// Credentials holds the app registration used for the client-credentials
// flow. All three fields are required.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Validate checks that all required credential fields are present.
func (c Credentials) Validate() error {
	switch {
	case c.TenantID == "":
		return fmt.Errorf("%w: tenant_id is empty", ErrNoCredentials)
	case c.ClientID == "":
		return fmt.Errorf("%w: client_id is empty", ErrNoCredentials)
	case c.ClientSecret == "":
		return fmt.Errorf("%w: client_secret is empty", ErrNoCredentials)
	}

	return nil
}

// tokenBridge adapts an oauth2.TokenSource to the TokenSource interface the
// client consumes. The underlying source caches tokens in memory and
// refreshes them transparently when they expire.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	tok, err := b.src.Token()
	if err != nil {
		b.logger.Error("acquiring access token failed",
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("graph: acquiring access token: %w", err)
	}

	b.logger.Debug("access token acquired",
		slog.Time("expires", tok.Expiry),
	)

	return tok.AccessToken, nil
}

// NewTokenSource builds a TokenSource from app credentials using the OAuth2
// client-credentials flow against the tenant's Azure AD endpoint. The context
// governs the lifetime of token acquisition requests made by the source.
func NewTokenSource(ctx context.Context, creds Credentials, logger *slog.Logger) (TokenSource, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}

	conf := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     microsoft.AzureADEndpoint(creds.TenantID).TokenURL,
		Scopes:       []string{graphScope},
	}

	logger.Debug("configured client-credentials token source",
		slog.String("tenant_id", creds.TenantID),
		slog.String("client_id", creds.ClientID),
	)

	return &tokenBridge{src: conf.TokenSource(ctx), logger: logger}, nil
}
