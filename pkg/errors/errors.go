package errors

import "errors"

// Общие ошибки, разделяемые адаптерами и сервисами
var (
	// ErrCacheMiss возвращается кэшем, когда ключ не найден
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrNotFound возвращается хранилищем, когда запись отсутствует,
	// а вызывающая сторона не может трактовать это как nil, nil
	ErrNotFound = errors.New("storage: record not found")
)
