package assistant

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// API - подмножество OpenAI Assistants API, которое нужно узлу.
//
// Реализуется pkg/llm/openai.AssistantsClient, в тестах подменяется фейком.
type API interface {
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	ModifyAssistant(ctx context.Context, assistantID string, req openai.AssistantRequest) (openai.Assistant, error)

	CreateThread(ctx context.Context) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error

	CreateMessage(ctx context.Context, threadID, content string) (openai.Message, error)
	// ListMessages возвращает сообщения треда, новые первыми.
	ListMessages(ctx context.Context, threadID string) ([]openai.Message, error)

	CreateRun(ctx context.Context, threadID, assistantID string) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []openai.ToolOutput) (openai.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error

	GetFile(ctx context.Context, fileID string) (openai.File, error)
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// ClientFactory возвращает API, авторизованный ключом apiKey.
type ClientFactory func(apiKey string) API
