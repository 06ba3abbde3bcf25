package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Credential - сохранённые параметры доступа к внешнему сервису.
type Credential struct {
	ID             string
	Name           string
	CredentialName string // тип, например "openAIApi"
	Data           string // JSON объект параметров
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Params разбирает Data в map параметров.
func (c *Credential) Params() (map[string]string, error) {
	params := map[string]string{}
	if c.Data == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(c.Data), &params); err != nil {
		return nil, fmt.Errorf("credential '%s': invalid data: %w", c.ID, err)
	}
	return params, nil
}

// CredentialRepo - репозиторий таблицы credential.
type CredentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo создаёт репозиторий поверх открытой базы.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Get возвращает credential по id или ErrNotFound.
func (r *CredentialRepo) Get(ctx context.Context, id string) (*Credential, error) {
	var c Credential
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, credential_name, data, created_at, updated_at FROM credential WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.CredentialName, &c.Data, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Table: "credential", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &c, nil
}

// Save создаёт или обновляет credential (upsert по id).
func (r *CredentialRepo) Save(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		return fmt.Errorf("credential id is required")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credential (id, name, credential_name, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, credential_name = excluded.credential_name,
		 data = excluded.data, updated_at = excluded.updated_at`,
		c.ID, c.Name, c.CredentialName, c.Data, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}
