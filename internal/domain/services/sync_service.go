package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/markethub/marketplace-sync/internal/adapters/messaging"
	postgres "github.com/markethub/marketplace-sync/internal/adapters/storage"
	"github.com/markethub/marketplace-sync/internal/domain/models"
	"github.com/markethub/marketplace-sync/internal/marketplace"
	"github.com/markethub/marketplace-sync/internal/utils"
	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

// SyncServiceInterface определяет операции синхронизации для HTTP-слоя и воркера
type SyncServiceInterface interface {
	StartSync(ctx context.Context, connectionID string, syncType models.SyncType) (string, error)
	GetExecution(ctx context.Context, executionID string) (*models.SyncExecution, error)
	ListExecutions(ctx context.Context, connectionID string, page, pageSize int) ([]*models.SyncExecution, int, error)

	GetConnection(ctx context.Context, connectionID string) (*models.Connection, error)
	ListConnections(ctx context.Context) ([]*models.Connection, error)
	TestConnection(ctx context.Context, connectionID string) (*models.Connection, error)

	ListProducts(ctx context.Context, connectionID string, page, pageSize int) ([]*models.MarketplaceProduct, int, error)
	SetAutoSync(ctx context.Context, productID string, enabled bool) error
	ImportProduct(ctx context.Context, productID string) (*models.LocalProduct, error)
}

// SyncService оркестрирует прогоны синхронизации товаров с маркетплейсами
type SyncService struct {
	storage     postgres.SyncStoragePort
	adapters    *marketplace.Registry
	resolver    *marketplace.CredentialResolver
	cache       interfaces.CachePort
	messaging   interfaces.MessagingPort
	logger      interfaces.LoggerPort
	limiter     *rate.Limiter
	eventsTopic string
}

// NewSyncService создает новый экземпляр SyncService.
// productDelay задает паузу между товарами пакета, общую для всех прогонов.
func NewSyncService(
	storage postgres.SyncStoragePort,
	adapters *marketplace.Registry,
	resolver *marketplace.CredentialResolver,
	cache interfaces.CachePort,
	msg interfaces.MessagingPort,
	logger interfaces.LoggerPort,
	productDelay time.Duration,
	eventsTopic string,
) *SyncService {
	if productDelay <= 0 {
		productDelay = 200 * time.Millisecond
	}
	return &SyncService{
		storage:     storage,
		adapters:    adapters,
		resolver:    resolver,
		cache:       cache,
		messaging:   msg,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Every(productDelay), 1),
		eventsTopic: eventsTopic,
	}
}

// syncExecutionEvent - событие о завершении прогона для шины сообщений
type syncExecutionEvent struct {
	EventType         string `json:"event_type"`
	ExecutionID       string `json:"execution_id"`
	ConnectionID      string `json:"connection_id"`
	Marketplace       string `json:"marketplace"`
	Status            string `json:"status"`
	ProductsProcessed int    `json:"products_processed"`
	ProductsUpdated   int    `json:"products_updated"`
	ProductsFailed    int    `json:"products_failed"`
	Summary           string `json:"summary,omitempty"`
}

// StartSync запускает прогон синхронизации и немедленно возвращает его ID.
// Сам пакет выполняется в фоне: вызывающая сторона опрашивает статус прогона
// по возвращенному ID.
func (s *SyncService) StartSync(ctx context.Context, connectionID string, syncType models.SyncType) (string, error) {
	if syncType == "" {
		syncType = models.SyncTypeAll
	}
	if !models.ValidSyncType(syncType) {
		return "", utils.ErrInvalidSyncType
	}

	conn, err := s.storage.GetConnection(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return "", utils.ErrConnectionNotFound
	}
	if !conn.IsActive() {
		return "", utils.ErrConnectionNotActive
	}

	execution := &models.SyncExecution{
		ID:            uuid.New().String(),
		ConnectionID:  conn.ID,
		ExecutionType: syncType,
		Status:        models.ExecutionStatusRunning,
		StartedAt:     time.Now().UTC(),
	}

	if err := s.storage.SaveSyncExecution(ctx, execution); err != nil {
		return "", fmt.Errorf("failed to create sync execution: %w", err)
	}

	s.logger.InfoWithContext(ctx, "прогон синхронизации запущен",
		interfaces.LogField{Key: "execution_id", Value: execution.ID},
		interfaces.LogField{Key: "connection_id", Value: conn.ID},
		interfaces.LogField{Key: "sync_type", Value: string(syncType)},
	)

	// Пакет выполняется вне контекста HTTP-запроса: отмена запроса не должна
	// прерывать уже начатый прогон
	go s.runSync(context.Background(), conn, execution, syncType)

	return execution.ID, nil
}

// runSync выполняет пакет синхронизации. Прогон всегда достигает ровно одного
// терминального состояния: ошибка отдельного товара учитывается в счетчиках и
// не прерывает пакет, фатальна только невозможность получить список товаров
// или адаптер.
func (s *SyncService) runSync(ctx context.Context, conn *models.Connection, execution *models.SyncExecution, syncType models.SyncType) {
	log := s.logger.WithFields(
		interfaces.LogField{Key: "execution_id", Value: execution.ID},
		interfaces.LogField{Key: "connection_id", Value: conn.ID},
		interfaces.LogField{Key: "marketplace", Value: conn.Marketplace},
	)

	adapter, err := s.adapters.Get(conn.Marketplace)
	if err != nil {
		log.Error("адаптер маркетплейса не найден", interfaces.LogField{Key: "error", Value: err.Error()})
		s.failExecution(ctx, execution, err)
		return
	}

	products, err := s.storage.ListSyncableProducts(ctx, conn.ID)
	if err != nil {
		log.Error("не удалось получить список товаров", interfaces.LogField{Key: "error", Value: err.Error()})
		s.failExecution(ctx, execution, err)
		return
	}

	for i, product := range products {
		// Пауза между товарами, кроме первого
		if i > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				break
			}
		}

		execution.ProductsProcessed++

		update, err := adapter.SyncProduct(ctx, conn, product, syncType)
		if err != nil {
			s.recordProductFailure(ctx, execution, product, err)
			continue
		}

		now := time.Now().UTC()
		product.Apply(update)
		product.SyncStatus = models.SyncStatusCompleted
		product.SyncError = ""
		product.LastSyncAt = &now

		if err := s.storage.SaveMarketplaceProduct(ctx, product); err != nil {
			s.recordProductFailure(ctx, execution, product, err)
			continue
		}

		execution.ProductsUpdated++

		if update.RateLimitRemaining != nil {
			if err := s.storage.UpdateConnectionRateLimit(ctx, conn.ID, *update.RateLimitRemaining); err != nil {
				log.Warn("не удалось обновить остаток лимита подключения",
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}

		// Зеркалирование в локальный товар не влияет на исход прогона
		if product.LocalProductID != nil {
			if err := s.storage.UpdateLocalProductMirror(ctx, *product.LocalProductID, product); err != nil {
				log.Warn("не удалось зеркалировать товар в витрину",
					interfaces.LogField{Key: "product_id", Value: product.ID},
					interfaces.LogField{Key: "error", Value: err.Error()})
			}
		}
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.Summary = fmt.Sprintf("Success rate: %s",
		models.SuccessRate(execution.ProductsUpdated, execution.ProductsProcessed))

	s.finishExecution(ctx, conn, execution)

	log.Info("прогон синхронизации завершен",
		interfaces.LogField{Key: "products_processed", Value: execution.ProductsProcessed},
		interfaces.LogField{Key: "products_updated", Value: execution.ProductsUpdated},
		interfaces.LogField{Key: "products_failed", Value: execution.ProductsFailed},
		interfaces.LogField{Key: "summary", Value: execution.Summary},
	)
}

// recordProductFailure учитывает ошибку товара в счетчиках прогона и в самой
// записи товара
func (s *SyncService) recordProductFailure(ctx context.Context, execution *models.SyncExecution, product *models.MarketplaceProduct, cause error) {
	execution.ProductsFailed++
	execution.Errors = append(execution.Errors, fmt.Sprintf("%s: %s", product.ID, cause.Error()))

	now := time.Now().UTC()
	product.SyncStatus = models.SyncStatusFailed
	product.SyncError = cause.Error()
	product.LastSyncAt = &now

	if err := s.storage.SaveMarketplaceProduct(ctx, product); err != nil {
		s.logger.Error("не удалось сохранить статус ошибки товара",
			interfaces.LogField{Key: "product_id", Value: product.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// failExecution переводит прогон в статус failed до начала пакета
func (s *SyncService) failExecution(ctx context.Context, execution *models.SyncExecution, cause error) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.Errors = append(execution.Errors, cause.Error())
	execution.Summary = fmt.Sprintf("Sync failed: %s", cause.Error())

	s.finishExecution(ctx, nil, execution)
}

// finishExecution выполняет единственную терминальную запись прогона,
// обновляет кэш и публикует событие в шину
func (s *SyncService) finishExecution(ctx context.Context, conn *models.Connection, execution *models.SyncExecution) {
	if err := s.storage.SaveSyncExecution(ctx, execution); err != nil {
		s.logger.Error("не удалось сохранить терминальное состояние прогона",
			interfaces.LogField{Key: "execution_id", Value: execution.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
		return
	}

	if data, err := json.Marshal(execution); err == nil {
		if err := s.cache.Set(ctx, "execution:"+execution.ID, data, 10*time.Minute); err != nil {
			s.logger.Warn("не удалось закэшировать прогон",
				interfaces.LogField{Key: "execution_id", Value: execution.ID},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}

	event := syncExecutionEvent{
		EventType:         messaging.SyncExecutionCompletedEvent,
		ExecutionID:       execution.ID,
		ConnectionID:      execution.ConnectionID,
		Status:            string(execution.Status),
		ProductsProcessed: execution.ProductsProcessed,
		ProductsUpdated:   execution.ProductsUpdated,
		ProductsFailed:    execution.ProductsFailed,
		Summary:           execution.Summary,
	}
	if execution.Status == models.ExecutionStatusFailed {
		event.EventType = messaging.SyncExecutionFailedEvent
	}
	if conn != nil {
		event.Marketplace = conn.Marketplace
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.messaging.PublishWithKey(ctx, s.eventsTopic, execution.ConnectionID, payload); err != nil {
		s.logger.Warn("не удалось опубликовать событие прогона",
			interfaces.LogField{Key: "execution_id", Value: execution.ID},
			interfaces.LogField{Key: "error", Value: err.Error()})
	}
}

// GetExecution возвращает прогон по ID. Терминальные прогоны читаются из кэша.
func (s *SyncService) GetExecution(ctx context.Context, executionID string) (*models.SyncExecution, error) {
	if data, err := s.cache.Get(ctx, "execution:"+executionID); err == nil {
		var execution models.SyncExecution
		if err := json.Unmarshal(data, &execution); err == nil {
			return &execution, nil
		}
	}

	execution, err := s.storage.GetSyncExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync execution: %w", err)
	}
	if execution == nil {
		return nil, utils.ErrExecutionNotFound
	}

	return execution, nil
}

// ListExecutions возвращает историю прогонов подключения
func (s *SyncService) ListExecutions(ctx context.Context, connectionID string, page, pageSize int) ([]*models.SyncExecution, int, error) {
	return s.storage.ListSyncExecutions(ctx, connectionID, page, pageSize)
}

// GetConnection возвращает подключение по ID
func (s *SyncService) GetConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	conn, err := s.storage.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return nil, utils.ErrConnectionNotFound
	}
	return conn, nil
}

// ListConnections возвращает все подключения продавца
func (s *SyncService) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	return s.storage.ListConnections(ctx)
}

// TestConnection проверяет доступность API маркетплейса. На ответ 401 токен
// обновляется через OAuth и проверка повторяется один раз.
func (s *SyncService) TestConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	conn, err := s.storage.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return nil, utils.ErrConnectionNotFound
	}

	adapter, err := s.adapters.Get(conn.Marketplace)
	if err != nil {
		return nil, err
	}

	pingErr := adapter.Ping(ctx, conn)
	if pingErr == marketplace.ErrUnauthorized {
		token, refreshErr := s.resolver.RefreshToken(ctx, conn.Marketplace)
		if refreshErr == nil {
			conn.AccessToken = token.AccessToken
			if token.RefreshToken != "" {
				conn.RefreshToken = token.RefreshToken
			}
			pingErr = adapter.Ping(ctx, conn)
		}
	}

	now := time.Now().UTC()
	conn.LastTestedAt = &now
	if pingErr != nil {
		conn.Status = models.ConnectionStatusExpired
	} else {
		conn.Status = models.ConnectionStatusConnected
	}

	if err := s.storage.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	return conn, nil
}

// ListProducts возвращает товары подключения с пагинацией
func (s *SyncService) ListProducts(ctx context.Context, connectionID string, page, pageSize int) ([]*models.MarketplaceProduct, int, error) {
	return s.storage.ListMarketplaceProducts(ctx, connectionID, page, pageSize)
}

// SetAutoSync включает или выключает автоматическую синхронизацию товара
func (s *SyncService) SetAutoSync(ctx context.Context, productID string, enabled bool) error {
	product, err := s.storage.GetMarketplaceProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to get marketplace product: %w", err)
	}
	if product == nil {
		return utils.ErrProductNotFound
	}
	return s.storage.SetProductAutoSync(ctx, productID, enabled)
}

// ImportProduct создает локальный товар витрины из товара маркетплейса и
// связывает их. Повторный импорт уже связанного товара возвращает ошибку.
func (s *SyncService) ImportProduct(ctx context.Context, productID string) (*models.LocalProduct, error) {
	product, err := s.storage.GetMarketplaceProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get marketplace product: %w", err)
	}
	if product == nil {
		return nil, utils.ErrProductNotFound
	}
	if product.LocalProductID != nil {
		return nil, fmt.Errorf("product %s is already imported", productID)
	}

	local := &models.LocalProduct{
		ID:     uuid.New().String(),
		Name:   product.Title,
		Price:  product.Price,
		Stock:  product.AvailableQty,
		Images: product.Images,
	}

	if err := s.storage.SaveLocalProduct(ctx, local); err != nil {
		return nil, fmt.Errorf("failed to save local product: %w", err)
	}
	if err := s.storage.LinkLocalProduct(ctx, product.ID, local.ID); err != nil {
		return nil, fmt.Errorf("failed to link local product: %w", err)
	}

	event := map[string]string{
		"event_type":       messaging.ProductImportedEvent,
		"product_id":       product.ID,
		"local_product_id": local.ID,
		"marketplace":      product.Marketplace,
	}
	if payload, err := json.Marshal(event); err == nil {
		if err := s.messaging.Publish(ctx, s.eventsTopic, payload); err != nil {
			s.logger.Warn("не удалось опубликовать событие импорта",
				interfaces.LogField{Key: "product_id", Value: product.ID},
				interfaces.LogField{Key: "error", Value: err.Error()})
		}
	}

	return local, nil
}
