package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/markethub/marketplace-sync/internal/adapters/messaging"
	postgres "github.com/markethub/marketplace-sync/internal/adapters/storage"
	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
	"github.com/markethub/marketplace-sync/pkg/tx"
)

// WebhookServiceInterface определяет обработку уведомлений маркетплейсов
type WebhookServiceInterface interface {
	HandleWebhook(ctx context.Context, payload *models.WebhookPayload) (*models.WebhookResult, error)
	ListLogs(ctx context.Context, marketplace string, page, pageSize int) ([]*models.WebhookLogEntry, int, error)
}

// WebhookService принимает уведомления маркетплейсов и применяет их к заказам
// и товарам. Каждый обработанный вебхук оставляет ровно одну запись в журнале
// аудита; отклоненные на валидации вызовы в журнал не попадают.
type WebhookService struct {
	storage     postgres.SyncStoragePort
	txManager   tx.TxManager
	messaging   interfaces.MessagingPort
	logger      interfaces.LoggerPort
	eventsTopic string
}

// NewWebhookService создает новый экземпляр WebhookService
func NewWebhookService(
	storage postgres.SyncStoragePort,
	txManager tx.TxManager,
	msg interfaces.MessagingPort,
	logger interfaces.LoggerPort,
	eventsTopic string,
) *WebhookService {
	return &WebhookService{
		storage:     storage,
		txManager:   txManager,
		messaging:   msg,
		logger:      logger,
		eventsTopic: eventsTopic,
	}
}

// HandleWebhook обрабатывает уведомление маркетплейса.
// Невалидный payload отклоняется до обработки и не журналируется.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload *models.WebhookPayload) (*models.WebhookResult, error) {
	if payload == nil || !payload.Valid() {
		return nil, utils.ErrInvalidWebhookPayload
	}

	log := s.logger.WithMarketplace(payload.Marketplace)

	result, handleErr := s.dispatch(ctx, payload)

	entry := &models.WebhookLogEntry{
		ID:          uuid.New().String(),
		Marketplace: payload.Marketplace,
		Operation:   "webhook_" + payload.EventType,
		Status:      models.WebhookLogStatusCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if handleErr != nil {
		entry.Status = models.WebhookLogStatusFailed
		entry.Errors = []string{handleErr.Error()}
	}

	if err := s.storage.SaveWebhookLog(ctx, entry); err != nil {
		log.Error("не удалось сохранить запись журнала вебхуков",
			interfaces.LogField{Key: "operation", Value: entry.Operation},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}

	if handleErr != nil {
		log.Error("ошибка обработки вебхука",
			interfaces.LogField{Key: "event_type", Value: payload.EventType},
			interfaces.LogField{Key: "error", Value: handleErr.Error()})
		return nil, handleErr
	}

	s.publishProcessed(ctx, payload, result)

	log.InfoWithContext(ctx, "вебхук обработан",
		interfaces.LogField{Key: "event_type", Value: payload.EventType},
		interfaces.LogField{Key: "message", Value: result.Message})

	return result, nil
}

// dispatch выбирает обработчик по типу события. Неизвестные события не
// считаются ошибкой: маркетплейсы добавляют новые типы без предупреждения.
func (s *WebhookService) dispatch(ctx context.Context, payload *models.WebhookPayload) (*models.WebhookResult, error) {
	switch payload.EventType {
	case models.WebhookEventOrderStatusUpdated:
		return s.handleOrderStatus(ctx, payload, false)
	case models.WebhookEventOrderShipped:
		return s.handleOrderStatus(ctx, payload, true)
	case models.WebhookEventStockUpdated:
		return s.handleStockUpdated(ctx, payload)
	case models.WebhookEventPriceUpdated:
		return s.handlePriceUpdated(ctx, payload)
	default:
		return &models.WebhookResult{
			EventType: payload.EventType,
			Message:   fmt.Sprintf("event %q ignored", payload.EventType),
		}, nil
	}
}

// handleOrderStatus обновляет статус заказа. Для события отгрузки статус
// принудительно переводится в shipped; для обычного обновления внешний статус
// переводится во внутренний, а при отсутствии соответствия остается прежним.
func (s *WebhookService) handleOrderStatus(ctx context.Context, payload *models.WebhookPayload, shipped bool) (*models.WebhookResult, error) {
	orderID := stringField(payload.Data, "order_id")
	if orderID == "" {
		return nil, fmt.Errorf("order_id is required for %s event", payload.EventType)
	}
	externalStatus := stringField(payload.Data, "status")
	trackingCode := stringField(payload.Data, "tracking_code")

	var message string
	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		order, err := s.storage.GetOrderByMarketplaceID(txCtx, payload.Marketplace, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			// Заказ еще не импортирован: уведомление принимается без записи,
			// повторная доставка того же вебхука безопасна
			message = fmt.Sprintf("order %s not found, nothing to update", orderID)
			return nil
		}

		if shipped {
			order.Status = models.OrderStatusShipped
			if externalStatus == "" {
				externalStatus = "shipped"
			}
		} else if mapped, ok := models.MapOrderStatus(externalStatus); ok {
			order.Status = mapped
		}
		if externalStatus != "" {
			order.MarketplaceStatus = externalStatus
		}
		if trackingCode != "" {
			order.TrackingCode = trackingCode
		}

		if err := s.storage.SaveOrder(txCtx, order); err != nil {
			return err
		}

		message = fmt.Sprintf("order %s updated to status %s", orderID, order.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.WebhookResult{EventType: payload.EventType, Message: message}, nil
}

// handleStockUpdated обновляет остаток товара. Товар ищется по внешнему ID,
// а для записей без внешнего ID - по подстроке названия.
func (s *WebhookService) handleStockUpdated(ctx context.Context, payload *models.WebhookPayload) (*models.WebhookResult, error) {
	productID := stringField(payload.Data, "product_id")
	if productID == "" {
		return nil, fmt.Errorf("product_id is required for %s event", payload.EventType)
	}
	stock, ok := intField(payload.Data, "stock")
	if !ok {
		return nil, fmt.Errorf("stock is required for %s event", payload.EventType)
	}

	var message string
	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		product, err := s.findProduct(txCtx, payload.Marketplace, productID)
		if err != nil {
			return err
		}
		if product == nil {
			message = fmt.Sprintf("product %s not found, nothing to update", productID)
			return nil
		}

		product.AvailableQty = stock
		if err := s.storage.SaveMarketplaceProduct(txCtx, product); err != nil {
			return err
		}

		if product.LocalProductID != nil {
			if err := s.storage.UpdateLocalProductMirror(txCtx, *product.LocalProductID, product); err != nil {
				return err
			}
		}

		message = fmt.Sprintf("product %s stock updated to %d", productID, stock)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.WebhookResult{EventType: payload.EventType, Message: message}, nil
}

// handlePriceUpdated обновляет цену товара. Исходная цена фиксируется только
// при первом обновлении.
func (s *WebhookService) handlePriceUpdated(ctx context.Context, payload *models.WebhookPayload) (*models.WebhookResult, error) {
	productID := stringField(payload.Data, "product_id")
	if productID == "" {
		return nil, fmt.Errorf("product_id is required for %s event", payload.EventType)
	}
	price, ok := floatField(payload.Data, "price")
	if !ok {
		return nil, fmt.Errorf("price is required for %s event", payload.EventType)
	}

	var message string
	err := s.txManager.Do(ctx, func(txCtx context.Context) error {
		product, err := s.findProduct(txCtx, payload.Marketplace, productID)
		if err != nil {
			return err
		}
		if product == nil {
			message = fmt.Sprintf("product %s not found, nothing to update", productID)
			return nil
		}

		product.Price = price
		if product.OriginalPrice == nil {
			original := price
			product.OriginalPrice = &original
		}

		if err := s.storage.SaveMarketplaceProduct(txCtx, product); err != nil {
			return err
		}

		if product.LocalProductID != nil {
			if err := s.storage.UpdateLocalProductMirror(txCtx, *product.LocalProductID, product); err != nil {
				return err
			}
		}

		message = fmt.Sprintf("product %s price updated to %.2f", productID, price)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.WebhookResult{EventType: payload.EventType, Message: message}, nil
}

// findProduct ищет товар по внешнему ID с запасным поиском по названию
func (s *WebhookService) findProduct(ctx context.Context, marketplace, productID string) (*models.MarketplaceProduct, error) {
	product, err := s.storage.FindProductByExternalID(ctx, marketplace, productID)
	if err != nil {
		return nil, err
	}
	if product != nil {
		return product, nil
	}
	return s.storage.FindProductByTitle(ctx, marketplace, productID)
}

// publishProcessed публикует событие об обработанном вебхуке в шину
func (s *WebhookService) publishProcessed(ctx context.Context, payload *models.WebhookPayload, result *models.WebhookResult) {
	event := map[string]string{
		"event_type":  messaging.WebhookProcessedEvent,
		"marketplace": payload.Marketplace,
		"webhook":     payload.EventType,
		"message":     result.Message,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.messaging.PublishWithKey(ctx, s.eventsTopic, payload.Marketplace, data); err != nil {
		s.logger.Warn("не удалось опубликовать событие вебхука",
			interfaces.LogField{Key: "marketplace", Value: payload.Marketplace},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// ListLogs возвращает журнал аудита вебхуков
func (s *WebhookService) ListLogs(ctx context.Context, marketplace string, page, pageSize int) ([]*models.WebhookLogEntry, int, error) {
	return s.storage.ListWebhookLogs(ctx, marketplace, page, pageSize)
}

// stringField извлекает строковое поле из данных вебхука. Числовые значения
// приводятся к строке: маркетплейсы присылают ID и как строки, и как числа.
func stringField(data map[string]json.RawMessage, key string) string {
	raw, ok := data[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intField извлекает целочисленное поле, допуская строковую запись числа
func intField(data map[string]json.RawMessage, key string) (int, bool) {
	raw, ok := data[key]
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.Atoi(s); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// floatField извлекает числовое поле, допуская строковую запись числа
func floatField(data map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := data[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
