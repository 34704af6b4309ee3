package graph

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{
			name:  "complete",
			creds: Credentials{TenantID: "t", ClientID: "c", ClientSecret: "s"},
		},
		{
			name:    "missing tenant",
			creds:   Credentials{ClientID: "c", ClientSecret: "s"},
			wantErr: true,
		},
		{
			name:    "missing client id",
			creds:   Credentials{TenantID: "t", ClientSecret: "s"},
			wantErr: true,
		},
		{
			name:    "missing secret",
			creds:   Credentials{TenantID: "t", ClientID: "c"},
			wantErr: true,
		},
		{
			name:    "all empty",
			creds:   Credentials{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoCredentials)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTokenSourceRejectsMissingCredentials(t *testing.T) {
	_, err := NewTokenSource(context.Background(), Credentials{TenantID: "t"}, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestNewTokenSource(t *testing.T) {
	creds := Credentials{TenantID: "tenant-1", ClientID: "client-1", ClientSecret: "secret"}

	src, err := NewTokenSource(context.Background(), creds, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NotNil(t, src)
}

func TestTokenBridge(t *testing.T) {
	bridge := &tokenBridge{
		src:    oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc123"}),
		logger: slog.New(slog.DiscardHandler),
	}

	tok, err := bridge.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)
}

// erringSource always fails token acquisition.
type erringSource struct{}

func (erringSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("aad unreachable")
}

func TestTokenBridgeError(t *testing.T) {
	bridge := &tokenBridge{src: erringSource{}, logger: slog.New(slog.DiscardHandler)}

	_, err := bridge.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquiring access token")
}
