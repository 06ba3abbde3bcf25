// Package store - реляционное хранилище конфигурации ассистентов.
//
// Три таблицы:
//   - assistant: сохранённые конфигурации (details - JSON с id/name/instructions удалённого ассистента)
//   - credential: параметры доступа (openAIApiKey)
//   - chat_message: сообщения чатов; session_id хранит id удалённого thread
//
// Драйверы: sqlite3 (github.com/mattn/go-sqlite3, по умолчанию) и postgres
// (github.com/lib/pq). Запросы используют плейсхолдеры $N - их понимают оба.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ilkoid/poncho-assistants/pkg/config"
)

// Open открывает базу по конфигу и при auto_migrate создаёт таблицы.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "sqlite3" && cfg.DSN != ":memory:" {
		// sqlite не создаёт каталоги сам
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite3" {
		// Один writer: sqlite не любит параллельные транзакции записи
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// schema совместима с sqlite и postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS assistant (
		id TEXT PRIMARY KEY,
		credential TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL,
		icon_src TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS credential (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credential_name TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		chatflow_id TEXT NOT NULL DEFAULT '',
		chat_id TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_message_chat_id ON chat_message (chat_id)`,
}

// Migrate создаёт таблицы если их нет.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
