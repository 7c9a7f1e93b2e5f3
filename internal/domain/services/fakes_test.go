package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	postgres "github.com/markethub/marketplace-sync/internal/adapters/storage"
	"github.com/markethub/marketplace-sync/internal/domain/models"
	pkgerrors "github.com/markethub/marketplace-sync/pkg/errors"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

// fakeStorage - хранилище в памяти для тестов сервисов
type fakeStorage struct {
	mu sync.Mutex

	connections map[string]*models.Connection
	products    map[string]*models.MarketplaceProduct
	locals      map[string]*models.LocalProduct
	orders      map[string]*models.Order
	executions  map[string]*models.SyncExecution
	webhookLogs []*models.WebhookLogEntry

	rateLimits  map[string]int
	mirrorCalls int

	failListProducts bool
	failSaveProduct  bool
	failSaveOrder    bool
}

var _ postgres.SyncStoragePort = (*fakeStorage)(nil)

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		connections: make(map[string]*models.Connection),
		products:    make(map[string]*models.MarketplaceProduct),
		locals:      make(map[string]*models.LocalProduct),
		orders:      make(map[string]*models.Order),
		executions:  make(map[string]*models.SyncExecution),
		rateLimits:  make(map[string]int),
	}
}

func (f *fakeStorage) SaveConnection(ctx context.Context, conn *models.Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *conn
	f.connections[conn.ID] = &c
	return nil
}

func (f *fakeStorage) GetConnection(ctx context.Context, id string) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.connections[id]
	if !ok {
		return nil, nil
	}
	c := *conn
	return &c, nil
}

func (f *fakeStorage) GetConnectionByMarketplace(ctx context.Context, marketplace string) (*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.connections {
		if conn.Marketplace == marketplace {
			c := *conn
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStorage) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Connection
	for _, conn := range f.connections {
		c := *conn
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeStorage) UpdateConnectionRateLimit(ctx context.Context, id string, remaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimits[id] = remaining
	return nil
}

func (f *fakeStorage) SaveMarketplaceProduct(ctx context.Context, product *models.MarketplaceProduct) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveProduct {
		return errors.New("storage unavailable")
	}
	p := *product
	f.products[product.ID] = &p
	return nil
}

func (f *fakeStorage) GetMarketplaceProduct(ctx context.Context, id string) (*models.MarketplaceProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	p := *product
	return &p, nil
}

func (f *fakeStorage) FindProductByExternalID(ctx context.Context, marketplace, externalID string) (*models.MarketplaceProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, product := range f.products {
		if product.Marketplace == marketplace && product.ExternalID == externalID {
			p := *product
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStorage) FindProductByTitle(ctx context.Context, marketplace, title string) (*models.MarketplaceProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, product := range f.products {
		if product.Marketplace == marketplace && containsFold(product.Title, title) {
			p := *product
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeStorage) ListSyncableProducts(ctx context.Context, connectionID string) ([]*models.MarketplaceProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListProducts {
		return nil, errors.New("storage unavailable")
	}
	var out []*models.MarketplaceProduct
	for _, product := range f.products {
		if product.ConnectionID == connectionID && product.AutoSync {
			p := *product
			out = append(out, &p)
		}
	}
	sortProductsByID(out)
	return out, nil
}

func (f *fakeStorage) ListMarketplaceProducts(ctx context.Context, connectionID string, page, pageSize int) ([]*models.MarketplaceProduct, int, error) {
	products, err := f.ListSyncableProducts(ctx, connectionID)
	return products, len(products), err
}

func (f *fakeStorage) SetProductAutoSync(ctx context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if product, ok := f.products[id]; ok {
		product.AutoSync = enabled
	}
	return nil
}

func (f *fakeStorage) LinkLocalProduct(ctx context.Context, productID, localProductID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if product, ok := f.products[productID]; ok {
		product.LocalProductID = &localProductID
	}
	return nil
}

func (f *fakeStorage) SaveLocalProduct(ctx context.Context, product *models.LocalProduct) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *product
	f.locals[product.ID] = &p
	return nil
}

func (f *fakeStorage) UpdateLocalProductMirror(ctx context.Context, localProductID string, source *models.MarketplaceProduct) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrorCalls++
	if local, ok := f.locals[localProductID]; ok {
		local.Name = source.Title
		local.Price = source.Price
		local.Stock = source.AvailableQty
		local.Images = source.Images
	}
	return nil
}

func (f *fakeStorage) SaveOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveOrder {
		return errors.New("storage unavailable")
	}
	o := *order
	f.orders[order.Marketplace+"/"+order.MarketplaceOrderID] = &o
	return nil
}

func (f *fakeStorage) GetOrderByMarketplaceID(ctx context.Context, marketplace, marketplaceOrderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[marketplace+"/"+marketplaceOrderID]
	if !ok {
		return nil, nil
	}
	o := *order
	return &o, nil
}

func (f *fakeStorage) SaveSyncExecution(ctx context.Context, execution *models.SyncExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *execution
	f.executions[execution.ID] = &e
	return nil
}

func (f *fakeStorage) GetSyncExecution(ctx context.Context, id string) (*models.SyncExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	execution, ok := f.executions[id]
	if !ok {
		return nil, nil
	}
	e := *execution
	return &e, nil
}

func (f *fakeStorage) ListSyncExecutions(ctx context.Context, connectionID string, page, pageSize int) ([]*models.SyncExecution, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SyncExecution
	for _, execution := range f.executions {
		if execution.ConnectionID == connectionID {
			e := *execution
			out = append(out, &e)
		}
	}
	return out, len(out), nil
}

func (f *fakeStorage) SaveWebhookLog(ctx context.Context, entry *models.WebhookLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *entry
	f.webhookLogs = append(f.webhookLogs, &e)
	return nil
}

func (f *fakeStorage) ListWebhookLogs(ctx context.Context, marketplace string, page, pageSize int) ([]*models.WebhookLogEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WebhookLogEntry
	for _, entry := range f.webhookLogs {
		if marketplace == "" || entry.Marketplace == marketplace {
			e := *entry
			out = append(out, &e)
		}
	}
	return out, len(out), nil
}

func (f *fakeStorage) BeginTx(ctx context.Context) (context.Context, error) { return ctx, nil }
func (f *fakeStorage) CommitTx(ctx context.Context) error                   { return nil }
func (f *fakeStorage) RollbackTx(ctx context.Context) error                 { return nil }
func (f *fakeStorage) Close() error                                         { return nil }

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortProductsByID(products []*models.MarketplaceProduct) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

// fakeAdapter - адаптер маркетплейса с заранее заданными ответами по товарам
type fakeAdapter struct {
	mu      sync.Mutex
	updates map[string]*models.ProductUpdate
	errs    map[string]error
	calls   []string
	pingErr error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		updates: make(map[string]*models.ProductUpdate),
		errs:    make(map[string]error),
	}
}

func (a *fakeAdapter) SyncProduct(ctx context.Context, conn *models.Connection, product *models.MarketplaceProduct, syncType models.SyncType) (*models.ProductUpdate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, product.ID)
	if err, ok := a.errs[product.ID]; ok {
		return nil, err
	}
	if update, ok := a.updates[product.ID]; ok {
		return update, nil
	}
	return &models.ProductUpdate{}, nil
}

func (a *fakeAdapter) Ping(ctx context.Context, conn *models.Connection) error {
	return a.pingErr
}

// fakeCache - кэш в памяти
type fakeCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.items[key]
	if !ok {
		return nil, pkgerrors.ErrCacheMiss
	}
	return value, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error { return nil }

func (c *fakeCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return delta, nil
}

func (c *fakeCache) Close() error { return nil }

// fakeMessaging записывает опубликованные сообщения
type fakeMessaging struct {
	mu        sync.Mutex
	published []publishedMessage
}

type publishedMessage struct {
	topic string
	key   string
	value []byte
}

func (m *fakeMessaging) Publish(ctx context.Context, topic string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic: topic, value: message})
	return nil
}

func (m *fakeMessaging) PublishWithKey(ctx context.Context, topic string, key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic: topic, key: key, value: message})
	return nil
}

func (m *fakeMessaging) Subscribe(ctx context.Context, topic string, handler interfaces.MessageHandler) (func() error, error) {
	return func() error { return nil }, nil
}

func (m *fakeMessaging) Close() error { return nil }

// fakeTxManager выполняет функцию без реальной транзакции
type fakeTxManager struct{}

func (fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// nopLogger отбрасывает все записи
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

func (nopLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {}
func (nopLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (nopLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (nopLogger) ErrorWithContext(ctx context.Context, msg string, args ...interface{}) {}

func (l nopLogger) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort     { return l }
func (l nopLogger) WithField(key string, value interface{}) interfaces.LoggerPort      { return l }
func (l nopLogger) WithMarketplace(marketplace string) interfaces.LoggerPort           { return l }
func (nopLogger) Sync() error                                                          { return nil }
