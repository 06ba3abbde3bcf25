package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StoredAssistant - сохранённая конфигурация ассистента.
//
// Создаётся UI конфигурации (или `poncho-assistant assistant add`),
// узел ассистента только читает её.
type StoredAssistant struct {
	ID         string
	Credential string // id записи credential
	Details    string // JSON, см. AssistantDetails
	IconSrc    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AssistantDetails - содержимое details: описание удалённого ассистента.
type AssistantDetails struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Model        string   `json:"model,omitempty"`
	Instructions string   `json:"instructions"`
	Tools        []string `json:"tools,omitempty"`
}

// ParseDetails разбирает JSON details. Пустой id удалённого ассистента - ошибка.
func (a *StoredAssistant) ParseDetails() (AssistantDetails, error) {
	var d AssistantDetails
	if err := json.Unmarshal([]byte(a.Details), &d); err != nil {
		return d, fmt.Errorf("%w: assistant '%s': %v", ErrInvalidDetails, a.ID, err)
	}
	if d.ID == "" {
		return d, fmt.Errorf("%w: assistant '%s': empty remote id", ErrInvalidDetails, a.ID)
	}
	return d, nil
}

// AssistantRepo - репозиторий таблицы assistant.
type AssistantRepo struct {
	db *sql.DB
}

// NewAssistantRepo создаёт репозиторий поверх открытой базы.
func NewAssistantRepo(db *sql.DB) *AssistantRepo {
	return &AssistantRepo{db: db}
}

// Get возвращает ассистента по id или ErrNotFound.
func (r *AssistantRepo) Get(ctx context.Context, id string) (*StoredAssistant, error) {
	var a StoredAssistant
	err := r.db.QueryRowContext(ctx,
		`SELECT id, credential, details, icon_src, created_at, updated_at FROM assistant WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Credential, &a.Details, &a.IconSrc, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Table: "assistant", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant: %w", err)
	}
	return &a, nil
}

// List возвращает всех ассистентов, самые свежие первыми.
func (r *AssistantRepo) List(ctx context.Context) ([]StoredAssistant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, credential, details, icon_src, created_at, updated_at FROM assistant ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	defer rows.Close()

	var out []StoredAssistant
	for rows.Next() {
		var a StoredAssistant
		if err := rows.Scan(&a.ID, &a.Credential, &a.Details, &a.IconSrc, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assistant: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list assistants: %w", err)
	}
	return out, nil
}

// Save создаёт или обновляет запись (upsert по id).
func (r *AssistantRepo) Save(ctx context.Context, a *StoredAssistant) error {
	if a.ID == "" {
		return fmt.Errorf("assistant id is required")
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO assistant (id, credential, details, icon_src, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET credential = excluded.credential, details = excluded.details,
		 icon_src = excluded.icon_src, updated_at = excluded.updated_at`,
		a.ID, a.Credential, a.Details, a.IconSrc, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save assistant: %w", err)
	}
	return nil
}
