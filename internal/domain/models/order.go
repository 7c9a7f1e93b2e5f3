package models

import (
	"strings"
	"time"
)

// OrderStatus описывает внутренний статус заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// Order представляет заказ, импортированный с маркетплейса.
// MarketplaceStatus хранит внешний статус как есть, даже если он не имеет
// соответствия во внутренней таблице статусов.
type Order struct {
	ID                 string      `json:"id"`
	Marketplace        string      `json:"marketplace"`
	MarketplaceOrderID string      `json:"marketplace_order_id"`
	Status             OrderStatus `json:"status"`
	MarketplaceStatus  string      `json:"marketplace_status,omitempty"`
	TrackingCode       string      `json:"tracking_code,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// MapOrderStatus переводит внешний статус маркетплейса во внутренний.
// Сравнение регистронезависимое; для неизвестного статуса возвращается false,
// и внутренний статус заказа остается нетронутым.
func MapOrderStatus(external string) (OrderStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(external)) {
	case "confirmed":
		return OrderStatusConfirmed, true
	case "processing":
		return OrderStatusProcessing, true
	case "shipped":
		return OrderStatusShipped, true
	case "delivered":
		return OrderStatusDelivered, true
	case "cancelled":
		return OrderStatusCancelled, true
	case "returned":
		return OrderStatusReturned, true
	default:
		return "", false
	}
}
