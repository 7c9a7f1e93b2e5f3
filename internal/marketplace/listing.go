package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/markethub/marketplace-sync/internal/domain/models"
)

// rateLimitHeader - заголовок, из которого переносится остаток лимита
// запросов на запись подключения
const rateLimitHeader = "X-RateLimit-Remaining"

// itemResponse - ответ API листинга маркетплейса на запрос одного товара
type itemResponse struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Price             float64 `json:"price"`
	Condition         string  `json:"condition"`
	AvailableQuantity int     `json:"available_quantity"`
	SoldQuantity      int     `json:"sold_quantity"`
	Pictures          []struct {
		URL string `json:"url"`
	} `json:"pictures"`
}

// ListingAdapter - адаптер маркетплейсов с REST API листингов в стиле
// MercadoLivre: GET {base}/items/{external_id} с Bearer-токеном подключения.
// Один экземпляр обслуживает все маркетплейсы с таким API; базовый URL
// берется из разрешенных учетных данных.
type ListingAdapter struct {
	resolver      *CredentialResolver
	client        *http.Client
	defaultMarkup float64
}

// NewListingAdapter создает адаптер с клиентским таймаутом и наценкой
// по умолчанию
func NewListingAdapter(resolver *CredentialResolver, defaultMarkup float64) *ListingAdapter {
	if defaultMarkup <= 0 {
		defaultMarkup = 1.30
	}
	return &ListingAdapter{
		resolver:      resolver,
		client:        &http.Client{Timeout: 15 * time.Second},
		defaultMarkup: defaultMarkup,
	}
}

// SyncProduct запрашивает товар у маркетплейса и вычисляет поля обновления.
// Тип синхронизации фильтрует поля: "prices" не трогает остатки и описание,
// "inventory" - цены, и так далее.
func (a *ListingAdapter) SyncProduct(ctx context.Context, conn *models.Connection, product *models.MarketplaceProduct, syncType models.SyncType) (*models.ProductUpdate, error) {
	item, headers, err := a.fetchItem(ctx, conn, product.ExternalID)
	if err != nil {
		return nil, err
	}

	update := &models.ProductUpdate{}

	if syncType.WantsPrices() {
		markup := a.defaultMarkup
		if product.Markup != nil && *product.Markup > 0 {
			markup = *product.Markup
		}
		price := round2(item.Price * markup)
		update.Price = &price
		// Первая наблюдаемая цена маркетплейса фиксируется как исходная;
		// Apply на модели не даст перезаписать уже заполненное значение.
		if product.OriginalPrice == nil {
			original := item.Price
			update.OriginalPrice = &original
		}
	}

	if syncType.WantsInventory() {
		available := item.AvailableQuantity
		sold := item.SoldQuantity
		update.AvailableQty = &available
		update.SoldQty = &sold
	}

	if syncType.WantsDetails() {
		if item.Title != "" {
			title := item.Title
			update.Title = &title
		}
		if item.Condition != "" {
			condition := item.Condition
			update.Condition = &condition
		}
		if len(item.Pictures) > 0 {
			images := make([]string, 0, len(item.Pictures))
			for _, pic := range item.Pictures {
				images = append(images, pic.URL)
			}
			update.Images = images
		}
	}

	if remaining := headers.Get(rateLimitHeader); remaining != "" {
		if value, err := strconv.Atoi(remaining); err == nil {
			update.RateLimitRemaining = &value
		}
	}

	return update, nil
}

// Ping проверяет доступность API маркетплейса с токеном подключения
func (a *ListingAdapter) Ping(ctx context.Context, conn *models.Connection) error {
	creds, err := a.resolver.Resolve(conn.Marketplace)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.APIBaseURL+"/users/me", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("marketplace ping failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("API Error: %d", resp.StatusCode)
	}
	return nil
}

// fetchItem выполняет запрос товара и декодирует ответ.
// Любой не-2xx статус превращается в ошибку "API Error: <код>" - этот текст
// попадает в журнал прогона и в sync_error товара.
func (a *ListingAdapter) fetchItem(ctx context.Context, conn *models.Connection, externalID string) (*itemResponse, http.Header, error) {
	creds, err := a.resolver.Resolve(conn.Marketplace)
	if err != nil {
		return nil, nil, err
	}

	url := fmt.Sprintf("%s/items/%s", creds.APIBaseURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build item request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marketplace request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("API Error: %d", resp.StatusCode)
	}

	var item itemResponse
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, nil, fmt.Errorf("failed to decode item response: %w", err)
	}

	return &item, resp.Header, nil
}

// round2 округляет цену до двух знаков
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
