package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/utils"
)

func newTestWebhookService(storage *fakeStorage) (*WebhookService, *fakeMessaging) {
	msg := &fakeMessaging{}
	service := NewWebhookService(storage, fakeTxManager{}, msg, nopLogger{}, "sync-events")
	return service, msg
}

func webhookPayload(marketplace, eventType string, data map[string]interface{}) *models.WebhookPayload {
	raw := make(map[string]json.RawMessage, len(data))
	for key, value := range data {
		encoded, _ := json.Marshal(value)
		raw[key] = encoded
	}
	return &models.WebhookPayload{
		Marketplace: marketplace,
		EventType:   eventType,
		Data:        raw,
	}
}

func TestHandleWebhookRejectsInvalidPayload(t *testing.T) {
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	cases := []*models.WebhookPayload{
		nil,
		{EventType: "stock_updated", Data: map[string]json.RawMessage{"x": json.RawMessage(`1`)}},
		{Marketplace: "testmarket", Data: map[string]json.RawMessage{"x": json.RawMessage(`1`)}},
		{Marketplace: "testmarket", EventType: "stock_updated"},
	}

	for _, payload := range cases {
		_, err := service.HandleWebhook(context.Background(), payload)
		assert.ErrorIs(t, err, utils.ErrInvalidWebhookPayload)
	}

	// Отклоненные на валидации вызовы не попадают в журнал аудита
	assert.Empty(t, storage.webhookLogs)
}

func TestHandleWebhookUnknownEventIsIgnored(t *testing.T) {
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", "listing_question_created", map[string]interface{}{
		"question_id": "q-1",
	})

	result, err := service.HandleWebhook(context.Background(), payload)
	require.NoError(t, err)
	assert.Contains(t, result.Message, "ignored")

	require.Len(t, storage.webhookLogs, 1)
	entry := storage.webhookLogs[0]
	assert.Equal(t, "webhook_listing_question_created", entry.Operation)
	assert.Equal(t, models.WebhookLogStatusCompleted, entry.Status)
	assert.Empty(t, entry.Errors)
}

func TestHandleWebhookStockUpdated(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	localID := "local-1"
	require.NoError(t, storage.SaveLocalProduct(ctx, &models.LocalProduct{ID: localID, Stock: 1}))
	require.NoError(t, storage.SaveMarketplaceProduct(ctx, &models.MarketplaceProduct{
		ID:             "p1",
		ConnectionID:   "conn-1",
		Marketplace:    "testmarket",
		ExternalID:     "MLB123",
		Title:          "Vintage camera",
		AvailableQty:   5,
		LocalProductID: &localID,
	}))

	service, msg := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventStockUpdated, map[string]interface{}{
		"product_id": "MLB123",
		"stock":      12,
	})

	result, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	assert.Contains(t, result.Message, "stock updated to 12")

	product, err := storage.GetMarketplaceProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 12, product.AvailableQty)

	// Остаток зеркалируется в связанный локальный товар
	assert.Equal(t, 12, storage.locals[localID].Stock)

	require.Len(t, storage.webhookLogs, 1)
	assert.Equal(t, "webhook_stock_updated", storage.webhookLogs[0].Operation)

	require.Len(t, msg.published, 1)
	assert.Equal(t, "testmarket", msg.published[0].key)
}

func TestHandleWebhookStockUpdatedAcceptsStringNumbers(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveMarketplaceProduct(ctx, &models.MarketplaceProduct{
		ID:          "p1",
		Marketplace: "testmarket",
		ExternalID:  "123",
	}))

	service, _ := newTestWebhookService(storage)

	// Маркетплейсы присылают ID как число, а остаток как строку
	payload := webhookPayload("testmarket", models.WebhookEventStockUpdated, map[string]interface{}{
		"product_id": 123,
		"stock":      "7",
	})

	_, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)

	product, err := storage.GetMarketplaceProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, product.AvailableQty)
}

func TestHandleWebhookStockUpdatedFallsBackToTitleSearch(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveMarketplaceProduct(ctx, &models.MarketplaceProduct{
		ID:          "p1",
		Marketplace: "testmarket",
		Title:       "Vintage Leica camera",
	}))

	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventStockUpdated, map[string]interface{}{
		"product_id": "leica",
		"stock":      3,
	})

	_, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)

	product, err := storage.GetMarketplaceProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.AvailableQty)
}

func TestHandleWebhookUnknownProductIsIdempotent(t *testing.T) {
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventStockUpdated, map[string]interface{}{
		"product_id": "unknown",
		"stock":      3,
	})

	for i := 0; i < 2; i++ {
		result, err := service.HandleWebhook(context.Background(), payload)
		require.NoError(t, err)
		assert.Contains(t, result.Message, "not found, nothing to update")
	}

	// Каждая доставка оставляет свою запись журнала
	assert.Len(t, storage.webhookLogs, 2)
}

func TestHandleWebhookStockUpdatedMissingFields(t *testing.T) {
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventStockUpdated, map[string]interface{}{
		"product_id": "MLB123",
	})

	_, err := service.HandleWebhook(context.Background(), payload)
	require.Error(t, err)

	// Ошибка обработки журналируется со статусом failed
	require.Len(t, storage.webhookLogs, 1)
	entry := storage.webhookLogs[0]
	assert.Equal(t, models.WebhookLogStatusFailed, entry.Status)
	require.Len(t, entry.Errors, 1)
	assert.Contains(t, entry.Errors[0], "stock is required")
}

func TestHandleWebhookPriceUpdatedKeepsOriginalPrice(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveMarketplaceProduct(ctx, &models.MarketplaceProduct{
		ID:          "p1",
		Marketplace: "testmarket",
		ExternalID:  "MLB123",
		Price:       100,
	}))

	service, _ := newTestWebhookService(storage)

	first := webhookPayload("testmarket", models.WebhookEventPriceUpdated, map[string]interface{}{
		"product_id": "MLB123",
		"price":      120.5,
	})
	_, err := service.HandleWebhook(ctx, first)
	require.NoError(t, err)

	product, err := storage.GetMarketplaceProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 120.5, product.Price)
	require.NotNil(t, product.OriginalPrice)
	assert.Equal(t, 120.5, *product.OriginalPrice)

	// Исходная цена фиксируется один раз и не перезаписывается
	second := webhookPayload("testmarket", models.WebhookEventPriceUpdated, map[string]interface{}{
		"product_id": "MLB123",
		"price":      99.9,
	})
	_, err = service.HandleWebhook(ctx, second)
	require.NoError(t, err)

	product, err = storage.GetMarketplaceProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 99.9, product.Price)
	require.NotNil(t, product.OriginalPrice)
	assert.Equal(t, 120.5, *product.OriginalPrice)
}

func TestHandleWebhookOrderStatusUpdated(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveOrder(ctx, &models.Order{
		ID:                 "o1",
		Marketplace:        "testmarket",
		MarketplaceOrderID: "2000001",
		Status:             models.OrderStatusPending,
	}))

	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventOrderStatusUpdated, map[string]interface{}{
		"order_id":      "2000001",
		"status":        "Delivered",
		"tracking_code": "TRACK-42",
	})

	result, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)
	assert.Contains(t, result.Message, "updated to status delivered")

	order, err := storage.GetOrderByMarketplaceID(ctx, "testmarket", "2000001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Equal(t, "Delivered", order.MarketplaceStatus)
	assert.Equal(t, "TRACK-42", order.TrackingCode)
}

func TestHandleWebhookOrderStatusUnknownStatusKeepsInternal(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveOrder(ctx, &models.Order{
		ID:                 "o1",
		Marketplace:        "testmarket",
		MarketplaceOrderID: "2000001",
		Status:             models.OrderStatusConfirmed,
	}))

	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventOrderStatusUpdated, map[string]interface{}{
		"order_id": "2000001",
		"status":   "awaiting_pickup",
	})

	_, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)

	order, err := storage.GetOrderByMarketplaceID(ctx, "testmarket", "2000001")
	require.NoError(t, err)
	// Внутренний статус не тронут, внешний сохранен как есть
	assert.Equal(t, models.OrderStatusConfirmed, order.Status)
	assert.Equal(t, "awaiting_pickup", order.MarketplaceStatus)
}

func TestHandleWebhookOrderShippedForcesStatus(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	require.NoError(t, storage.SaveOrder(ctx, &models.Order{
		ID:                 "o1",
		Marketplace:        "testmarket",
		MarketplaceOrderID: "2000001",
		Status:             models.OrderStatusConfirmed,
	}))

	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventOrderShipped, map[string]interface{}{
		"order_id":      "2000001",
		"tracking_code": "TRACK-99",
	})

	_, err := service.HandleWebhook(ctx, payload)
	require.NoError(t, err)

	order, err := storage.GetOrderByMarketplaceID(ctx, "testmarket", "2000001")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, "shipped", order.MarketplaceStatus)
	assert.Equal(t, "TRACK-99", order.TrackingCode)
}

func TestHandleWebhookOrderStatusRequiresOrderID(t *testing.T) {
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	payload := webhookPayload("testmarket", models.WebhookEventOrderStatusUpdated, map[string]interface{}{
		"status": "delivered",
	})

	_, err := service.HandleWebhook(context.Background(), payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order_id is required")
}

func TestListLogsFiltersByMarketplace(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()
	service, _ := newTestWebhookService(storage)

	for _, marketplace := range []string{"testmarket", "othermarket", "testmarket"} {
		payload := webhookPayload(marketplace, "listing_question_created", map[string]interface{}{"q": 1})
		_, err := service.HandleWebhook(ctx, payload)
		require.NoError(t, err)
	}

	entries, total, err := service.ListLogs(ctx, "testmarket", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, entries, 2)

	entries, total, err = service.ListLogs(ctx, "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, entries, 3)
}
