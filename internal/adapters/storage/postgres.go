package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/pkg/tx"
)

// SyncStorageInterface определяет интерфейс взаимодействия с хранилищем PostgreSQL
type SyncStorageInterface interface {
	// Connection методы
	SaveConnection(ctx context.Context, conn *models.Connection) error
	GetConnection(ctx context.Context, connectionID string) (*models.Connection, error)
	GetConnectionByMarketplace(ctx context.Context, marketplace string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	UpdateConnectionRateLimit(ctx context.Context, connectionID string, remaining int) error

	// MarketplaceProduct методы
	SaveMarketplaceProduct(ctx context.Context, product *models.MarketplaceProduct) error
	GetMarketplaceProduct(ctx context.Context, productID string) (*models.MarketplaceProduct, error)
	FindProductByExternalID(ctx context.Context, marketplace, externalID string) (*models.MarketplaceProduct, error)
	FindProductByTitle(ctx context.Context, marketplace, title string) (*models.MarketplaceProduct, error)
	ListSyncableProducts(ctx context.Context, connectionID string) ([]*models.MarketplaceProduct, error)
	ListMarketplaceProducts(ctx context.Context, connectionID string, page, pageSize int) ([]*models.MarketplaceProduct, int, error)
	SetProductAutoSync(ctx context.Context, productID string, enabled bool) error
	LinkLocalProduct(ctx context.Context, productID, localProductID string) error

	// LocalProduct методы
	SaveLocalProduct(ctx context.Context, product *models.LocalProduct) error
	UpdateLocalProductMirror(ctx context.Context, localProductID string, source *models.MarketplaceProduct) error

	// Order методы
	SaveOrder(ctx context.Context, order *models.Order) error
	GetOrderByMarketplaceID(ctx context.Context, marketplace, marketplaceOrderID string) (*models.Order, error)

	// SyncExecution методы
	SaveSyncExecution(ctx context.Context, execution *models.SyncExecution) error
	GetSyncExecution(ctx context.Context, executionID string) (*models.SyncExecution, error)
	ListSyncExecutions(ctx context.Context, connectionID string, page, pageSize int) ([]*models.SyncExecution, int, error)

	// WebhookLog методы
	SaveWebhookLog(ctx context.Context, entry *models.WebhookLogEntry) error
	ListWebhookLogs(ctx context.Context, marketplace string, page, pageSize int) ([]*models.WebhookLogEntry, int, error)
}

type SyncStoragePort interface {
	SyncStorageInterface

	BeginTx(ctx context.Context) (context.Context, error)

	CommitTx(ctx context.Context) error

	RollbackTx(ctx context.Context) error

	Close() error
}

// SyncStorage реализация хранилища для PostgreSQL
type SyncStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage создает новый экземпляр SyncStorage
func NewPostgresStorage(ctx context.Context, connectionString string) (*SyncStorage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &SyncStorage{
		pool: pool,
	}, nil
}

func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool) (*SyncStorage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SyncStorage{
		pool: pool,
	}, nil
}

// Pool возвращает пул соединений для менеджера транзакций
func (r *SyncStorage) Pool() *pgxpool.Pool {
	return r.pool
}

// Close закрывает соединение с БД
func (r *SyncStorage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// getExecutor возвращает исполнителя запросов (транзакцию или пул)
func (r *SyncStorage) getExecutor(ctx context.Context) executor {
	if tx := r.getTx(ctx); tx != nil {
		return tx // pgx.Tx реализует нужные методы
	}
	return r.pool // *pgxpool.Pool тоже реализует нужные методы
}

// getTx получает транзакцию из контекста
func (r *SyncStorage) getTx(ctx context.Context) pgx.Tx {
	txFromCtx, ok := ctx.Value(tx.GetKey()).(pgx.Tx)
	if !ok {
		return nil
	}
	return txFromCtx
}

// BeginTx начинает новую транзакцию
func (r *SyncStorage) BeginTx(ctx context.Context) (context.Context, error) {
	t, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return context.WithValue(ctx, tx.GetKey(), t), nil
}

// CommitTx фиксирует транзакцию
func (r *SyncStorage) CommitTx(ctx context.Context) error {
	t := r.getTx(ctx)
	if t == nil {
		return errors.New("no transaction in context")
	}
	return t.Commit(ctx)
}

// RollbackTx откатывает транзакцию
func (r *SyncStorage) RollbackTx(ctx context.Context) error {
	t := r.getTx(ctx)
	if t == nil {
		return errors.New("no transaction in context")
	}
	return t.Rollback(ctx)
}
