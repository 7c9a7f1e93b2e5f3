package models

import (
	"fmt"
	"time"
)

// SyncType определяет, какие поля товара обновляет прогон синхронизации
type SyncType string

const (
	SyncTypeAll       SyncType = "all"
	SyncTypePrices    SyncType = "prices"
	SyncTypeInventory SyncType = "inventory"
	SyncTypeDetails   SyncType = "details"
)

// ValidSyncType проверяет тип синхронизации. Неизвестные типы отклоняются
// сразу, а не трактуются как "all".
func ValidSyncType(t SyncType) bool {
	switch t {
	case SyncTypeAll, SyncTypePrices, SyncTypeInventory, SyncTypeDetails:
		return true
	default:
		return false
	}
}

// WantsPrices сообщает, затрагивает ли тип синхронизации цены
func (t SyncType) WantsPrices() bool {
	return t == SyncTypeAll || t == SyncTypePrices
}

// WantsInventory сообщает, затрагивает ли тип синхронизации остатки
func (t SyncType) WantsInventory() bool {
	return t == SyncTypeAll || t == SyncTypeInventory
}

// WantsDetails сообщает, затрагивает ли тип синхронизации описание товара
func (t SyncType) WantsDetails() bool {
	return t == SyncTypeAll || t == SyncTypeDetails
}

// ExecutionStatus описывает состояние прогона синхронизации
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// SyncExecution представляет один прогон оркестратора. Создается со статусом
// running до начала пакета и обновляется ровно один раз при достижении
// терминального состояния; после этого запись неизменяема.
type SyncExecution struct {
	ID                string          `json:"id"`
	ConnectionID      string          `json:"connection_id"`
	ExecutionType     SyncType        `json:"execution_type"`
	Status            ExecutionStatus `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	ProductsProcessed int             `json:"products_processed"`
	ProductsUpdated   int             `json:"products_updated"`
	ProductsFailed    int             `json:"products_failed"`
	Errors            []string        `json:"errors,omitempty"`
	Summary           string          `json:"summary,omitempty"`
}

// SuccessRate форматирует долю успешно обновленных товаров.
// При нуле обработанных товаров возвращается "0%".
func SuccessRate(updated, processed int) string {
	if processed == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(updated)/float64(processed)*100)
}
