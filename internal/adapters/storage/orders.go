package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/markethub/marketplace-sync/internal/domain/models"
)

// SaveOrder сохраняет заказ маркетплейса
func (r *SyncStorage) SaveOrder(ctx context.Context, order *models.Order) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.orders
			(id, marketplace, marketplace_order_id, status, marketplace_status,
			 tracking_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (marketplace, marketplace_order_id)
		DO UPDATE SET
			status = $4,
			marketplace_status = $5,
			tracking_code = $6,
			updated_at = $8
	`

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	_, err := executor.Exec(ctx, query, order.ID, order.Marketplace,
		order.MarketplaceOrderID, order.Status, order.MarketplaceStatus,
		order.TrackingCode, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrderByMarketplaceID получает заказ по внешнему ID маркетплейса
func (r *SyncStorage) GetOrderByMarketplaceID(ctx context.Context, marketplace, marketplaceOrderID string) (*models.Order, error) {
	executor := r.getExecutor(ctx)

	query := `
		SELECT id, marketplace, marketplace_order_id, status, marketplace_status,
		       tracking_code, created_at, updated_at
		FROM sync.orders
		WHERE marketplace = $1 AND marketplace_order_id = $2
	`

	var order models.Order
	err := executor.QueryRow(ctx, query, marketplace, marketplaceOrderID).Scan(
		&order.ID, &order.Marketplace, &order.MarketplaceOrderID,
		&order.Status, &order.MarketplaceStatus, &order.TrackingCode,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Заказ не найден
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &order, nil
}
