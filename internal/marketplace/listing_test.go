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
	"github.com/markethub/marketplace-sync/internal/domain/models"
)

func testResolver(baseURL string) *CredentialResolver {
	cfg := &config.Config{
		Marketplaces: map[string]config.MarketplaceCredentials{
			"testmarket": {
				ClientID:   "client-1",
				APIBaseURL: baseURL,
			},
		},
	}
	cfg.Sync.CredentialsTTL = time.Minute
	return NewCredentialResolver(cfg)
}

func testConnection() *models.Connection {
	return &models.Connection{
		ID:          "conn-1",
		Marketplace: "testmarket",
		AccessToken: "token-123",
		Status:      models.ConnectionStatusConnected,
	}
}

func TestSyncProductAppliesMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/items/MLB123", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		w.Header().Set("X-RateLimit-Remaining", "58")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "MLB123",
			"title": "Vintage camera",
			"price": 100,
			"condition": "used",
			"available_quantity": 4,
			"sold_quantity": 17,
			"pictures": [{"url": "https://cdn.example.com/1.jpg"}]
		}`))
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB123"}

	update, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypeAll)
	require.NoError(t, err)

	require.NotNil(t, update.Price)
	assert.Equal(t, 130.0, *update.Price)
	require.NotNil(t, update.OriginalPrice)
	assert.Equal(t, 100.0, *update.OriginalPrice)

	require.NotNil(t, update.AvailableQty)
	assert.Equal(t, 4, *update.AvailableQty)
	require.NotNil(t, update.SoldQty)
	assert.Equal(t, 17, *update.SoldQty)

	require.NotNil(t, update.Title)
	assert.Equal(t, "Vintage camera", *update.Title)
	require.NotNil(t, update.Condition)
	assert.Equal(t, "used", *update.Condition)
	assert.Equal(t, []string{"https://cdn.example.com/1.jpg"}, update.Images)

	require.NotNil(t, update.RateLimitRemaining)
	assert.Equal(t, 58, *update.RateLimitRemaining)
}

func TestSyncProductUsesProductMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "MLB123", "price": 80}`))
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	markup := 1.5
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB123", Markup: &markup}

	update, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypePrices)
	require.NoError(t, err)
	require.NotNil(t, update.Price)
	// Наценка товара имеет приоритет над наценкой по умолчанию
	assert.Equal(t, 120.0, *update.Price)
}

func TestSyncProductPricesOnlyLeavesOtherFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "MLB123", "title": "Camera", "price": 100, "available_quantity": 4}`))
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB123"}

	update, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypePrices)
	require.NoError(t, err)

	assert.NotNil(t, update.Price)
	assert.Nil(t, update.Title)
	assert.Nil(t, update.Condition)
	assert.Nil(t, update.AvailableQty)
	assert.Nil(t, update.SoldQty)
	assert.Empty(t, update.Images)
}

func TestSyncProductSkipsOriginalPriceWhenAlreadyFixed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "MLB123", "price": 90}`))
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	fixed := 100.0
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB123", OriginalPrice: &fixed}

	update, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypePrices)
	require.NoError(t, err)
	assert.Nil(t, update.OriginalPrice)
}

func TestSyncProductAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB404"}

	_, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypeAll)
	require.Error(t, err)
	assert.Equal(t, "API Error: 404", err.Error())
}

func TestSyncProductUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)
	product := &models.MarketplaceProduct{ID: "p1", ExternalID: "MLB123"}

	_, err := adapter.SyncProduct(context.Background(), testConnection(), product, models.SyncTypeAll)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPing(t *testing.T) {
	var status int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer server.Close()

	adapter := NewListingAdapter(testResolver(server.URL), 1.30)

	status = http.StatusOK
	assert.NoError(t, adapter.Ping(context.Background(), testConnection()))

	status = http.StatusUnauthorized
	assert.ErrorIs(t, adapter.Ping(context.Background(), testConnection()), ErrUnauthorized)

	status = http.StatusInternalServerError
	err := adapter.Ping(context.Background(), testConnection())
	require.Error(t, err)
	assert.Equal(t, "API Error: 500", err.Error())
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	adapter := NewListingAdapter(testResolver("http://localhost"), 1.30)
	registry.Register("testmarket", adapter)

	got, err := registry.Get("testmarket")
	require.NoError(t, err)
	assert.Same(t, adapter, got)

	_, err = registry.Get("othermarket")
	assert.ErrorIs(t, err, ErrUnsupportedMarketplace)
}
