package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ilkoid/poncho-assistants/pkg/assistant"
	"github.com/ilkoid/poncho-assistants/pkg/store"
	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// RunRequest - запрос хоста на один ход диалога.
type RunRequest struct {
	AssistantID string   `json:"assistantId"`
	ChatID      string   `json:"chatId,omitempty"`
	Input       string   `json:"input"`
	Tools       []string `json:"tools,omitempty"` // nil = инструменты из details ассистента
}

// RunResponse - результат узла плюс chat id, по которому продолжать диалог.
type RunResponse struct {
	ChatID   string        `json:"chatId"`
	Duration time.Duration `json:"-"`
	*assistant.Result
}

// Run исполняет ход диалога и записывает его в историю чата.
//
// Ошибка записи истории не ломает ответ, но следующий вызов с этим chat id
// создаст новый тред.
func (c *Components) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	start := time.Now()
	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	result, err := c.Node.Run(ctx, assistant.Input{
		AssistantID: req.AssistantID,
		ChatID:      chatID,
		Input:       req.Input,
		Tools:       c.toolsFor(ctx, req),
	})
	if err != nil {
		return nil, err
	}

	c.record(ctx, req.AssistantID, chatID, result.Assistant.ThreadID, store.RoleUser, req.Input)
	c.record(ctx, req.AssistantID, chatID, result.Assistant.ThreadID, store.RoleAssistant, result.Text)

	return &RunResponse{ChatID: chatID, Duration: time.Since(start), Result: result}, nil
}

// toolsFor выбирает локальные инструменты для вызова.
func (c *Components) toolsFor(ctx context.Context, req RunRequest) []tools.Tool {
	if req.Tools != nil {
		return SelectTools(c.Tools, req.Tools)
	}

	stored, err := c.Assistants.Get(ctx, req.AssistantID)
	if err != nil {
		// узел сам вернёт типизированную ошибку
		return nil
	}
	details, err := stored.ParseDetails()
	if err != nil {
		return nil
	}
	return SelectTools(c.Tools, details.Tools)
}

func (c *Components) record(ctx context.Context, assistantID, chatID, threadID, role, content string) {
	err := c.Messages.Append(ctx, &store.StoredChatMessage{
		ID:         uuid.NewString(),
		Role:       role,
		ChatflowID: assistantID,
		ChatID:     chatID,
		SessionID:  threadID,
		Content:    content,
	})
	if err != nil {
		utils.Warn("Failed to record chat message", "chat_id", chatID, "role", role, "error", err)
	}
}

// ClearSession - best-effort очистка: удаляет удалённый тред и локальную
// историю этой сессии. Ошибки только логируются, вызывающий получает
// false, если тред удалить не удалось.
func (c *Components) ClearSession(ctx context.Context, assistantID, sessionID, chatID string) bool {
	if sessionID == "" && chatID != "" {
		if m, err := c.Messages.FindByChatID(ctx, chatID); err == nil {
			sessionID = m.SessionID
		}
	}

	err := c.Node.ClearSession(ctx, assistant.ClearRequest{
		AssistantID: assistantID,
		SessionID:   sessionID,
		ChatID:      chatID,
	})
	if err != nil {
		utils.Warn("Clear session skipped", "assistant", assistantID, "session_id", sessionID, "chat_id", chatID, "error", err)
		return false
	}

	// история чата целиком, иначе только строки этого треда
	switch {
	case chatID != "":
		if n, err := c.Messages.DeleteByChatID(ctx, chatID); err != nil {
			utils.Warn("Failed to delete chat history", "chat_id", chatID, "error", err)
		} else {
			utils.Debug("Chat history deleted", "chat_id", chatID, "rows", n)
		}
	case sessionID != "":
		if n, err := c.Messages.DeleteBySessionID(ctx, sessionID); err != nil {
			utils.Warn("Failed to delete chat history", "session_id", sessionID, "error", err)
		} else {
			utils.Debug("Chat history deleted", "session_id", sessionID, "rows", n)
		}
	}
	return true
}

// ListAssistants - список ассистентов для UI выбора.
func (c *Components) ListAssistants(ctx context.Context) ([]assistant.AssistantOption, error) {
	return c.Node.ListAssistants(ctx)
}
