package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markethub/marketplace-sync/config"
)

func TestResolveKnownMarketplace(t *testing.T) {
	resolver := testResolver("https://api.example.com")

	creds, err := resolver.Resolve("testmarket")
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ClientID)
	assert.Equal(t, "https://api.example.com", creds.APIBaseURL)
}

func TestResolveUnknownMarketplace(t *testing.T) {
	resolver := testResolver("https://api.example.com")

	_, err := resolver.Resolve("othermarket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"othermarket"`)
}

func TestResolveIsCaseSensitive(t *testing.T) {
	resolver := testResolver("https://api.example.com")

	_, err := resolver.Resolve("TestMarket")
	assert.Error(t, err)
}

func TestResolveCachesUntilInvalidated(t *testing.T) {
	cfg := &config.Config{
		Marketplaces: map[string]config.MarketplaceCredentials{
			"testmarket": {ClientID: "client-1"},
		},
	}
	cfg.Sync.CredentialsTTL = time.Minute
	resolver := NewCredentialResolver(cfg)

	creds, err := resolver.Resolve("testmarket")
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ClientID)

	// Кэш переживает изменение конфигурации до явного сброса
	cfg.Marketplaces["testmarket"] = config.MarketplaceCredentials{ClientID: "client-2"}

	creds, err = resolver.Resolve("testmarket")
	require.NoError(t, err)
	assert.Equal(t, "client-1", creds.ClientID)

	resolver.Invalidate("testmarket")

	creds, err = resolver.Resolve("testmarket")
	require.NoError(t, err)
	assert.Equal(t, "client-2", creds.ClientID)
}

func TestRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh-token", "token_type": "bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	cfg := &config.Config{
		Marketplaces: map[string]config.MarketplaceCredentials{
			"testmarket": {
				ClientID:     "client-1",
				ClientSecret: "secret-1",
				TokenURL:     server.URL + "/oauth/token",
			},
		},
	}
	cfg.Sync.CredentialsTTL = time.Minute
	resolver := NewCredentialResolver(cfg)

	token, err := resolver.RefreshToken(context.Background(), "testmarket")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token.AccessToken)
}

func TestRefreshTokenWithoutEndpoint(t *testing.T) {
	resolver := testResolver("https://api.example.com")

	_, err := resolver.RefreshToken(context.Background(), "testmarket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token endpoint")
}
