// Package credentials превращает ссылку на сохранённый credential в API ключ.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ilkoid/poncho-assistants/pkg/store"
)

// ParamOpenAIAPIKey - имя параметра с ключом OpenAI в данных credential.
const ParamOpenAIAPIKey = "openAIApiKey"

// TypeOpenAI - тип credential с ключом OpenAI.
const TypeOpenAI = "openAIApi"

// ErrMissing - credential не найден или в нём нет ключа.
var ErrMissing = errors.New("credential missing")

// Source - откуда читаются credential. *store.CredentialRepo реализует его.
type Source interface {
	Get(ctx context.Context, id string) (*store.Credential, error)
}

// Resolver достаёт параметры из credential.
type Resolver struct {
	source Source
}

// NewResolver создаёт Resolver поверх источника.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Param возвращает параметр credential по имени.
//
// Пустая ссылка, отсутствующая запись, битые данные и пустое значение - ErrMissing.
// Остальные ошибки источника возвращаются как есть.
func (r *Resolver) Param(ctx context.Context, credentialID, name string) (string, error) {
	if credentialID == "" {
		return "", fmt.Errorf("%w: empty credential reference", ErrMissing)
	}

	cred, err := r.source.Get(ctx, credentialID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: credential '%s' not found", ErrMissing, credentialID)
	}
	if err != nil {
		return "", err
	}

	params, err := cred.Params()
	if err != nil {
		return "", fmt.Errorf("%w: credential '%s' has unreadable data: %v", ErrMissing, credentialID, err)
	}

	value := strings.TrimSpace(params[name])
	if value == "" {
		return "", fmt.Errorf("%w: credential '%s' has no %s", ErrMissing, credentialID, name)
	}
	return value, nil
}

// OpenAIKey - Param(credentialID, openAIApiKey).
func (r *Resolver) OpenAIKey(ctx context.Context, credentialID string) (string, error) {
	return r.Param(ctx, credentialID, ParamOpenAIAPIKey)
}
