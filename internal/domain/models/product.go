package models

import "time"

// SyncStatus описывает состояние последней синхронизации товара
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// MarketplaceProduct представляет кэшированную копию листинга маркетплейса.
// Привязан ровно к одному подключению; удаляется только административно,
// путь синхронизации записи не удаляет.
type MarketplaceProduct struct {
	ID           string  `json:"id"`
	ConnectionID string  `json:"connection_id"`
	Marketplace  string  `json:"marketplace"`
	ExternalID   string  `json:"external_id"`
	Title        string  `json:"title"`
	Condition    string  `json:"condition,omitempty"`
	Price        float64 `json:"price"`
	// OriginalPrice фиксируется при первом наблюдении цены и далее не
	// перезаписывается: от него считается наценка.
	OriginalPrice  *float64   `json:"original_price,omitempty"`
	Markup         *float64   `json:"markup,omitempty"`
	AvailableQty   int        `json:"available_quantity"`
	SoldQty        int        `json:"sold_quantity"`
	Images         []string   `json:"images,omitempty"`
	SyncStatus     SyncStatus `json:"sync_status"`
	SyncError      string     `json:"sync_error,omitempty"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	AutoSync       bool       `json:"auto_sync"`
	LocalProductID *string    `json:"local_product_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LocalProduct представляет товар витрины, в который зеркалируются данные
// импортированного листинга. Принадлежит каталогу; синхронизация пишет в него
// в одну сторону и никогда не читает локальные правки обратно.
type LocalProduct struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Images    []string  `json:"images,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductUpdate содержит поля, вычисленные адаптером маркетплейса для одного
// товара. Адаптер ничего не сохраняет сам: запись в хранилище выполняет
// оркестратор. Nil-поле означает "не трогать".
type ProductUpdate struct {
	Title         *string  `json:"title,omitempty"`
	Condition     *string  `json:"condition,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	AvailableQty  *int     `json:"available_quantity,omitempty"`
	SoldQty       *int     `json:"sold_quantity,omitempty"`
	Images        []string `json:"images,omitempty"`
	// RateLimitRemaining переносится из заголовков ответа маркетплейса на
	// запись подключения.
	RateLimitRemaining *int `json:"rate_limit_remaining,omitempty"`
}

// Apply переносит вычисленные адаптером поля в товар. Nil-поля не трогаются.
// OriginalPrice записывается только один раз: уже зафиксированное значение
// не перезаписывается.
func (p *MarketplaceProduct) Apply(u *ProductUpdate) {
	if u == nil {
		return
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Condition != nil {
		p.Condition = *u.Condition
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.OriginalPrice != nil && p.OriginalPrice == nil {
		p.OriginalPrice = u.OriginalPrice
	}
	if u.AvailableQty != nil {
		p.AvailableQty = *u.AvailableQty
	}
	if u.SoldQty != nil {
		p.SoldQty = *u.SoldQty
	}
	if len(u.Images) > 0 {
		p.Images = u.Images
	}
}

// Empty сообщает, что адаптер не вычислил ни одного поля
func (u *ProductUpdate) Empty() bool {
	return u.Title == nil && u.Condition == nil && u.Price == nil &&
		u.OriginalPrice == nil && u.AvailableQty == nil && u.SoldQty == nil &&
		len(u.Images) == 0
}
