package models

import (
	"encoding/json"
	"time"
)

// Типы событий, которые присылают маркетплейсы
const (
	WebhookEventOrderStatusUpdated = "order_status_updated"
	WebhookEventStockUpdated       = "stock_updated"
	WebhookEventPriceUpdated       = "price_updated"
	WebhookEventOrderShipped       = "order_shipped"
)

// WebhookPayload представляет входящее уведомление маркетплейса
type WebhookPayload struct {
	Marketplace string                     `json:"marketplace"`
	EventType   string                     `json:"event_type"`
	Data        map[string]json.RawMessage `json:"data"`
	Timestamp   string                     `json:"timestamp,omitempty"`
}

// Valid проверяет обязательные поля payload. Невалидные вызовы отклоняются
// до обработки и не попадают в журнал аудита.
func (p *WebhookPayload) Valid() bool {
	return p.Marketplace != "" && p.EventType != "" && len(p.Data) > 0
}

// WebhookLogStatus описывает исход обработки вебхука
type WebhookLogStatus string

const (
	WebhookLogStatusCompleted WebhookLogStatus = "completed"
	WebhookLogStatusFailed    WebhookLogStatus = "failed"
)

// WebhookLogEntry представляет одну запись журнала аудита вебхуков.
// Журнал append-only: записи никогда не обновляются после создания.
type WebhookLogEntry struct {
	ID          string           `json:"id"`
	Marketplace string           `json:"marketplace"`
	Operation   string           `json:"operation"` // webhook_<event_type>
	Status      WebhookLogStatus `json:"status"`
	Errors      []string         `json:"errors,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// WebhookResult описывает исход обработки для HTTP-слоя
type WebhookResult struct {
	EventType string `json:"event_type"`
	Message   string `json:"message"`
}
