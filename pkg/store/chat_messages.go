package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Роли сообщений чата.
const (
	RoleUser      = "userMessage"
	RoleAssistant = "apiMessage"
)

// StoredChatMessage - сообщение локального чата.
//
// SessionID - id удалённого thread, в котором идёт этот чат.
type StoredChatMessage struct {
	ID         string
	Role       string
	ChatflowID string
	ChatID     string
	SessionID  string
	Content    string
	CreatedAt  time.Time
}

// ChatMessageRepo - репозиторий таблицы chat_message.
type ChatMessageRepo struct {
	db *sql.DB
}

// NewChatMessageRepo создаёт репозиторий поверх открытой базы.
func NewChatMessageRepo(db *sql.DB) *ChatMessageRepo {
	return &ChatMessageRepo{db: db}
}

// FindByChatID возвращает последнее сообщение чата с привязанной сессией.
// Нет такого - ErrNotFound.
func (r *ChatMessageRepo) FindByChatID(ctx context.Context, chatID string) (*StoredChatMessage, error) {
	var m StoredChatMessage
	err := r.db.QueryRowContext(ctx,
		`SELECT id, role, chatflow_id, chat_id, session_id, content, created_at FROM chat_message
		 WHERE chat_id = $1 AND session_id <> '' ORDER BY created_at DESC LIMIT 1`,
		chatID,
	).Scan(&m.ID, &m.Role, &m.ChatflowID, &m.ChatID, &m.SessionID, &m.Content, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Table: "chat_message", Key: chatID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat message: %w", err)
	}
	return &m, nil
}

// Append записывает сообщение. Пустой CreatedAt заполняется текущим временем.
func (r *ChatMessageRepo) Append(ctx context.Context, m *StoredChatMessage) error {
	if m.ID == "" {
		return fmt.Errorf("chat message id is required")
	}
	if m.ChatID == "" {
		return fmt.Errorf("chat id is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_message (id, role, chatflow_id, chat_id, session_id, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Role, m.ChatflowID, m.ChatID, m.SessionID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// DeleteByChatID удаляет историю чата (после очистки удалённого thread).
func (r *ChatMessageRepo) DeleteByChatID(ctx context.Context, chatID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_message WHERE chat_id = $1`, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return n, nil
}

// DeleteBySessionID удаляет историю по id thread.
func (r *ChatMessageRepo) DeleteBySessionID(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_message WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	return n, nil
}
