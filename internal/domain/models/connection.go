package models

import "time"

// ConnectionStatus описывает состояние подключения к маркетплейсу
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusExpired      ConnectionStatus = "expired"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// Connection представляет авторизованное подключение продавца к одному маркетплейсу.
// Создается после успешного OAuth-обмена; путь синхронизации изменяет только
// счетчик оставшихся запросов (RateLimitRemaining) и статус токена.
type Connection struct {
	ID                 string           `json:"id"`
	Marketplace        string           `json:"marketplace"`
	SellerID           string           `json:"seller_id"`
	Status             ConnectionStatus `json:"status"`
	AccessToken        string           `json:"-"`
	RefreshToken       string           `json:"-"`
	Region             string           `json:"region,omitempty"`
	RateLimitRemaining int              `json:"rate_limit_remaining"`
	LastTestedAt       *time.Time       `json:"last_tested_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsActive сообщает, можно ли использовать подключение для синхронизации
func (c *Connection) IsActive() bool {
	return c.Status == ConnectionStatusConnected
}
