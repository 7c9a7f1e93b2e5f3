package marketplace

import (
	"context"
	"errors"

	"github.com/markethub/marketplace-sync/internal/domain/models"
)

var (
	// ErrUnsupportedMarketplace возвращается реестром, когда для маркетплейса
	// не зарегистрирован адаптер. Вызывающая сторона не должна предполагать
	// успех: контракт требует явного отказа вместо тихого отклонения.
	ErrUnsupportedMarketplace = errors.New("unsupported marketplace")

	// ErrUnauthorized возвращается адаптером на ответ 401: токен подключения
	// истек и его нужно обновить
	ErrUnauthorized = errors.New("marketplace API unauthorized")
)

// Adapter определяет контракт адаптера маркетплейса: один аутентифицированный
// запрос к API листинга и нормализация ответа в ProductUpdate. Адаптер не
// сохраняет ничего сам - запись выполняет оркестратор.
type Adapter interface {
	// SyncProduct запрашивает у маркетплейса состояние одного товара и
	// возвращает поля для обновления, отфильтрованные по типу синхронизации
	SyncProduct(ctx context.Context, conn *models.Connection, product *models.MarketplaceProduct, syncType models.SyncType) (*models.ProductUpdate, error)

	// Ping проверяет доступность API маркетплейса с токеном подключения
	Ping(ctx context.Context, conn *models.Connection) error
}

// Registry хранит адаптеры по имени маркетплейса
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry создает пустой реестр адаптеров
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register регистрирует адаптер под именем маркетплейса
func (r *Registry) Register(marketplace string, adapter Adapter) {
	r.adapters[marketplace] = adapter
}

// Get возвращает адаптер маркетплейса или ErrUnsupportedMarketplace
func (r *Registry) Get(marketplace string) (Adapter, error) {
	adapter, ok := r.adapters[marketplace]
	if !ok {
		return nil, ErrUnsupportedMarketplace
	}
	return adapter, nil
}
