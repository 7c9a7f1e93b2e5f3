package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/markethub/marketplace-sync/internal/domain/models"
)

// SaveSyncExecution сохраняет прогон синхронизации. Создание и терминальная
// запись используют один upsert: прогон создается со статусом running и
// обновляется один раз при завершении.
func (r *SyncStorage) SaveSyncExecution(ctx context.Context, execution *models.SyncExecution) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.sync_executions
			(id, connection_id, execution_type, status, started_at, completed_at,
			 products_processed, products_updated, products_failed, errors, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			status = $4,
			completed_at = $6,
			products_processed = $7,
			products_updated = $8,
			products_failed = $9,
			errors = $10,
			summary = $11
	`

	errorsJSON, err := json.Marshal(execution.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal execution errors: %w", err)
	}

	_, err = executor.Exec(ctx, query, execution.ID, execution.ConnectionID,
		execution.ExecutionType, execution.Status, execution.StartedAt,
		execution.CompletedAt, execution.ProductsProcessed, execution.ProductsUpdated,
		execution.ProductsFailed, errorsJSON, execution.Summary)
	if err != nil {
		return fmt.Errorf("failed to save sync execution: %w", err)
	}
	return nil
}

const executionColumns = `
	id, connection_id, execution_type, status, started_at, completed_at,
	products_processed, products_updated, products_failed, errors, summary
`

func scanExecution(row pgx.Row) (*models.SyncExecution, error) {
	var execution models.SyncExecution
	var errorsJSON []byte

	err := row.Scan(&execution.ID, &execution.ConnectionID, &execution.ExecutionType,
		&execution.Status, &execution.StartedAt, &execution.CompletedAt,
		&execution.ProductsProcessed, &execution.ProductsUpdated,
		&execution.ProductsFailed, &errorsJSON, &execution.Summary)
	if err != nil {
		return nil, err
	}

	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &execution.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution errors: %w", err)
		}
	}

	return &execution, nil
}

// GetSyncExecution получает прогон синхронизации по ID
func (r *SyncStorage) GetSyncExecution(ctx context.Context, executionID string) (*models.SyncExecution, error) {
	executor := r.getExecutor(ctx)

	query := `SELECT ` + executionColumns + ` FROM sync.sync_executions WHERE id = $1`

	execution, err := scanExecution(executor.QueryRow(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Прогон не найден
		}
		return nil, fmt.Errorf("failed to get sync execution: %w", err)
	}
	return execution, nil
}

// ListSyncExecutions возвращает историю прогонов подключения с пагинацией
func (r *SyncStorage) ListSyncExecutions(ctx context.Context, connectionID string, page, pageSize int) ([]*models.SyncExecution, int, error) {
	executor := r.getExecutor(ctx)

	var total int
	countQuery := `SELECT COUNT(*) FROM sync.sync_executions WHERE connection_id = $1`
	if err := executor.QueryRow(ctx, countQuery, connectionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync executions: %w", err)
	}

	if total == 0 {
		return []*models.SyncExecution{}, 0, nil
	}

	query := `
		SELECT ` + executionColumns + `
		FROM sync.sync_executions
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := executor.Query(ctx, query, connectionID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list sync executions: %w", err)
	}
	defer rows.Close()

	var executions []*models.SyncExecution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan execution row: %w", err)
		}
		executions = append(executions, execution)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating execution rows: %w", rows.Err())
	}

	return executions, total, nil
}

// SaveWebhookLog добавляет запись в журнал аудита вебхуков.
// Журнал append-only, записи не обновляются.
func (r *SyncStorage) SaveWebhookLog(ctx context.Context, entry *models.WebhookLogEntry) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.webhook_logs (id, marketplace, operation, status, errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	errorsJSON, err := json.Marshal(entry.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook log errors: %w", err)
	}

	_, err = executor.Exec(ctx, query, entry.ID, entry.Marketplace, entry.Operation,
		entry.Status, errorsJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save webhook log: %w", err)
	}
	return nil
}

// ListWebhookLogs возвращает журнал вебхуков с пагинацией. Пустой marketplace
// означает все маркетплейсы.
func (r *SyncStorage) ListWebhookLogs(ctx context.Context, marketplace string, page, pageSize int) ([]*models.WebhookLogEntry, int, error) {
	executor := r.getExecutor(ctx)

	var total int
	countQuery := `SELECT COUNT(*) FROM sync.webhook_logs WHERE ($1 = '' OR marketplace = $1)`
	if err := executor.QueryRow(ctx, countQuery, marketplace).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}

	if total == 0 {
		return []*models.WebhookLogEntry{}, 0, nil
	}

	query := `
		SELECT id, marketplace, operation, status, errors, created_at
		FROM sync.webhook_logs
		WHERE ($1 = '' OR marketplace = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := executor.Query(ctx, query, marketplace, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.WebhookLogEntry
	for rows.Next() {
		var entry models.WebhookLogEntry
		var errorsJSON []byte

		err := rows.Scan(&entry.ID, &entry.Marketplace, &entry.Operation,
			&entry.Status, &errorsJSON, &entry.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan webhook log row: %w", err)
		}

		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &entry.Errors); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal webhook log errors: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating webhook log rows: %w", rows.Err())
	}

	return entries, total, nil
}
