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

const marketplaceProductColumns = `
	id, connection_id, marketplace, external_id, title, condition,
	price, original_price, markup, available_qty, sold_qty, images,
	sync_status, sync_error, last_sync_at, auto_sync, local_product_id,
	created_at, updated_at
`

// SaveMarketplaceProduct сохраняет товар маркетплейса
func (r *SyncStorage) SaveMarketplaceProduct(ctx context.Context, product *models.MarketplaceProduct) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.marketplace_products
			(id, connection_id, marketplace, external_id, title, condition,
			 price, original_price, markup, available_qty, sold_qty, images,
			 sync_status, sync_error, last_sync_at, auto_sync, local_product_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id)
		DO UPDATE SET
			title = $5,
			condition = $6,
			price = $7,
			original_price = $8,
			markup = $9,
			available_qty = $10,
			sold_qty = $11,
			images = $12,
			sync_status = $13,
			sync_error = $14,
			last_sync_at = $15,
			auto_sync = $16,
			local_product_id = $17,
			updated_at = $19
	`

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal product images: %w", err)
	}

	_, err = executor.Exec(ctx, query,
		product.ID, product.ConnectionID, product.Marketplace, product.ExternalID,
		product.Title, product.Condition, product.Price, product.OriginalPrice,
		product.Markup, product.AvailableQty, product.SoldQty, images,
		product.SyncStatus, product.SyncError, product.LastSyncAt,
		product.AutoSync, product.LocalProductID, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save marketplace product: %w", err)
	}
	return nil
}

func scanMarketplaceProduct(row pgx.Row) (*models.MarketplaceProduct, error) {
	var product models.MarketplaceProduct
	var images []byte

	err := row.Scan(&product.ID, &product.ConnectionID, &product.Marketplace,
		&product.ExternalID, &product.Title, &product.Condition,
		&product.Price, &product.OriginalPrice, &product.Markup,
		&product.AvailableQty, &product.SoldQty, &images,
		&product.SyncStatus, &product.SyncError, &product.LastSyncAt,
		&product.AutoSync, &product.LocalProductID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(images) > 0 {
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product images: %w", err)
		}
	}

	return &product, nil
}

// GetMarketplaceProduct получает товар по ID
func (r *SyncStorage) GetMarketplaceProduct(ctx context.Context, productID string) (*models.MarketplaceProduct, error) {
	executor := r.getExecutor(ctx)

	query := `SELECT ` + marketplaceProductColumns + ` FROM sync.marketplace_products WHERE id = $1`

	product, err := scanMarketplaceProduct(executor.QueryRow(ctx, query, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Товар не найден
		}
		return nil, fmt.Errorf("failed to get marketplace product: %w", err)
	}
	return product, nil
}

// FindProductByExternalID ищет товар по внешнему ID маркетплейса
func (r *SyncStorage) FindProductByExternalID(ctx context.Context, marketplace, externalID string) (*models.MarketplaceProduct, error) {
	executor := r.getExecutor(ctx)

	query := `
		SELECT ` + marketplaceProductColumns + `
		FROM sync.marketplace_products
		WHERE marketplace = $1 AND external_id = $2
		LIMIT 1
	`

	product, err := scanMarketplaceProduct(executor.QueryRow(ctx, query, marketplace, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product by external id: %w", err)
	}
	return product, nil
}

// FindProductByTitle ищет товар по подстроке названия. Запасной путь для
// записей, у которых внешний ID еще не заполнен после миграции.
func (r *SyncStorage) FindProductByTitle(ctx context.Context, marketplace, title string) (*models.MarketplaceProduct, error) {
	executor := r.getExecutor(ctx)

	query := `
		SELECT ` + marketplaceProductColumns + `
		FROM sync.marketplace_products
		WHERE marketplace = $1 AND title ILIKE '%' || $2 || '%'
		ORDER BY created_at
		LIMIT 1
	`

	product, err := scanMarketplaceProduct(executor.QueryRow(ctx, query, marketplace, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product by title: %w", err)
	}
	return product, nil
}

// ListSyncableProducts возвращает товары подключения с включенной
// автоматической синхронизацией
func (r *SyncStorage) ListSyncableProducts(ctx context.Context, connectionID string) ([]*models.MarketplaceProduct, error) {
	executor := r.getExecutor(ctx)

	query := `
		SELECT ` + marketplaceProductColumns + `
		FROM sync.marketplace_products
		WHERE connection_id = $1 AND auto_sync = true
		ORDER BY created_at
	`

	rows, err := executor.Query(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncable products: %w", err)
	}
	defer rows.Close()

	var products []*models.MarketplaceProduct
	for rows.Next() {
		product, err := scanMarketplaceProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, nil
}

// ListMarketplaceProducts возвращает товары подключения с пагинацией
func (r *SyncStorage) ListMarketplaceProducts(ctx context.Context, connectionID string, page, pageSize int) ([]*models.MarketplaceProduct, int, error) {
	executor := r.getExecutor(ctx)

	var total int
	countQuery := `SELECT COUNT(*) FROM sync.marketplace_products WHERE connection_id = $1`
	if err := executor.QueryRow(ctx, countQuery, connectionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count marketplace products: %w", err)
	}

	if total == 0 {
		return []*models.MarketplaceProduct{}, 0, nil
	}

	query := `
		SELECT ` + marketplaceProductColumns + `
		FROM sync.marketplace_products
		WHERE connection_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := executor.Query(ctx, query, connectionID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list marketplace products: %w", err)
	}
	defer rows.Close()

	var products []*models.MarketplaceProduct
	for rows.Next() {
		product, err := scanMarketplaceProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}

	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("error while iterating product rows: %w", rows.Err())
	}

	return products, total, nil
}

// SetProductAutoSync включает или выключает автоматическую синхронизацию товара
func (r *SyncStorage) SetProductAutoSync(ctx context.Context, productID string, enabled bool) error {
	executor := r.getExecutor(ctx)

	query := `
		UPDATE sync.marketplace_products
		SET auto_sync = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := executor.Exec(ctx, query, productID, enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set product auto sync: %w", err)
	}
	return nil
}

// LinkLocalProduct связывает товар маркетплейса с локальным товаром витрины
func (r *SyncStorage) LinkLocalProduct(ctx context.Context, productID, localProductID string) error {
	executor := r.getExecutor(ctx)

	query := `
		UPDATE sync.marketplace_products
		SET local_product_id = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := executor.Exec(ctx, query, productID, localProductID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link local product: %w", err)
	}
	return nil
}

// SaveLocalProduct сохраняет локальный товар витрины
func (r *SyncStorage) SaveLocalProduct(ctx context.Context, product *models.LocalProduct) error {
	executor := r.getExecutor(ctx)

	query := `
		INSERT INTO sync.local_products (id, name, price, stock, images, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			name = $2,
			price = $3,
			stock = $4,
			images = $5,
			updated_at = $7
	`

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal local product images: %w", err)
	}

	_, err = executor.Exec(ctx, query, product.ID, product.Name, product.Price,
		product.Stock, images, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save local product: %w", err)
	}
	return nil
}

// UpdateLocalProductMirror зеркалирует данные товара маркетплейса в связанный
// локальный товар. Запись односторонняя: локальные правки не читаются обратно.
func (r *SyncStorage) UpdateLocalProductMirror(ctx context.Context, localProductID string, source *models.MarketplaceProduct) error {
	executor := r.getExecutor(ctx)

	query := `
		UPDATE sync.local_products
		SET name = $2, price = $3, stock = $4, images = $5, updated_at = $6
		WHERE id = $1
	`

	images, err := json.Marshal(source.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal local product images: %w", err)
	}

	_, err = executor.Exec(ctx, query, localProductID, source.Title, source.Price,
		source.AvailableQty, images, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update local product mirror: %w", err)
	}
	return nil
}
