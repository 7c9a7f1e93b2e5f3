package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/markethub/marketplace-sync/internal/domain/models"
)

// SaveConnection сохраняет подключение к маркетплейсу
func (r *SyncStorage) SaveConnection(ctx context.Context, conn *models.Connection) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.connections
			(id, marketplace, seller_id, status, access_token, refresh_token,
			 region, rate_limit_remaining, last_tested_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			status = $4,
			access_token = $5,
			refresh_token = $6,
			region = $7,
			rate_limit_remaining = $8,
			last_tested_at = $9,
			updated_at = $11
	`

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := executor.Exec(ctx, query,
		conn.ID, conn.Marketplace, conn.SellerID, conn.Status,
		conn.AccessToken, conn.RefreshToken, conn.Region,
		conn.RateLimitRemaining, conn.LastTestedAt, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

const connectionColumns = `
	id, marketplace, seller_id, status, access_token, refresh_token,
	region, rate_limit_remaining, last_tested_at, created_at, updated_at
`

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var conn models.Connection
	err := row.Scan(&conn.ID, &conn.Marketplace, &conn.SellerID, &conn.Status,
		&conn.AccessToken, &conn.RefreshToken, &conn.Region,
		&conn.RateLimitRemaining, &conn.LastTestedAt, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetConnection получает подключение по ID
func (r *SyncStorage) GetConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	executor := r.getExecutor(ctx)

	query := `SELECT ` + connectionColumns + ` FROM sync.connections WHERE id = $1`

	conn, err := scanConnection(executor.QueryRow(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Подключение не найдено
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// GetConnectionByMarketplace получает подключение по имени маркетплейса
func (r *SyncStorage) GetConnectionByMarketplace(ctx context.Context, marketplace string) (*models.Connection, error) {
	executor := r.getExecutor(ctx)

	query := `SELECT ` + connectionColumns + ` FROM sync.connections WHERE marketplace = $1 ORDER BY created_at LIMIT 1`

	conn, err := scanConnection(executor.QueryRow(ctx, query, marketplace))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get connection by marketplace: %w", err)
	}
	return conn, nil
}

// ListConnections возвращает все подключения продавца
func (r *SyncStorage) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	executor := r.getExecutor(ctx)

	query := `SELECT ` + connectionColumns + ` FROM sync.connections ORDER BY created_at`

	rows, err := executor.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection row: %w", err)
		}
		connections = append(connections, conn)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating connection rows: %w", rows.Err())
	}

	return connections, nil
}

// UpdateConnectionRateLimit переносит остаток лимита запросов из заголовков
// маркетплейса на запись подключения
func (r *SyncStorage) UpdateConnectionRateLimit(ctx context.Context, connectionID string, remaining int) error {
	executor := r.getExecutor(ctx)

	query := `
		UPDATE sync.connections
		SET rate_limit_remaining = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := executor.Exec(ctx, query, connectionID, remaining, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update connection rate limit: %w", err)
	}
	return nil
}
