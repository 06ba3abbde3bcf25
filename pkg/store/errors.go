package store

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается когда запись не найдена.
//
// Пример:
//
//	a, err := repo.Get(ctx, id)
//	if errors.Is(err, store.ErrNotFound) { ... }
var ErrNotFound = errors.New("record not found")

// ErrInvalidDetails - details ассистента не разбираются как JSON.
var ErrInvalidDetails = errors.New("invalid assistant details")

// NotFoundError - ErrNotFound с контекстом таблицы и ключа.
type NotFoundError struct {
	Table string
	Key   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Table, e.Key)
}

// Is позволяет errors.Is(err, ErrNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
