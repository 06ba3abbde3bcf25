// Package openai реализует адаптер OpenAI Assistants API (assistants, threads,
// runs, files) поверх go-openai.
//
// Адаптер "тупой": никакой логики оркестрации, только вызовы SDK, клиентский
// rate limit и единообразная обёртка ошибок. Оркестрация живёт в pkg/assistant.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/ilkoid/poncho-assistants/pkg/config"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// AssistantsClient - обёртка над *openai.Client для Assistants API.
//
// Thread-safe. Limiter общий для всех вызовов одного клиента.
type AssistantsClient struct {
	api     *openai.Client
	limiter *rate.Limiter
}

// NewAssistantsClient создаёт клиент для apiKey по секции openai конфига.
func NewAssistantsClient(apiKey string, cfg config.OpenAIConfig) *AssistantsClient {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &AssistantsClient{
		api:     openai.NewClientWithConfig(clientCfg),
		limiter: newLimiter(cfg.RateLimit, cfg.BurstLimit),
	}
}

// newLimiter переводит запросы/минуту в rate.Limit (запросы/секунду).
// rateLimit <= 0 отключает ограничение.
func newLimiter(rateLimit, burst int) *rate.Limiter {
	if rateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	ratePerSec := float64(rateLimit) / 60.0
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// wait блокируется до разрешения limiter'а или отмены ctx.
func (c *AssistantsClient) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", op, err)
	}
	return nil
}

// RetrieveAssistant загружает удалённого ассистента.
func (c *AssistantsClient) RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error) {
	if err := c.wait(ctx, "retrieve assistant"); err != nil {
		return openai.Assistant{}, err
	}
	a, err := c.api.RetrieveAssistant(ctx, assistantID)
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("retrieve assistant %s: %w", assistantID, err)
	}
	return a, nil
}

// ModifyAssistant обновляет удалённого ассистента.
func (c *AssistantsClient) ModifyAssistant(ctx context.Context, assistantID string, req openai.AssistantRequest) (openai.Assistant, error) {
	if err := c.wait(ctx, "modify assistant"); err != nil {
		return openai.Assistant{}, err
	}
	a, err := c.api.ModifyAssistant(ctx, assistantID, req)
	if err != nil {
		return openai.Assistant{}, fmt.Errorf("modify assistant %s: %w", assistantID, err)
	}
	return a, nil
}

// CreateThread создаёт пустой тред.
func (c *AssistantsClient) CreateThread(ctx context.Context) (openai.Thread, error) {
	if err := c.wait(ctx, "create thread"); err != nil {
		return openai.Thread{}, err
	}
	t, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return openai.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

// RetrieveThread загружает существующий тред.
func (c *AssistantsClient) RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error) {
	if err := c.wait(ctx, "retrieve thread"); err != nil {
		return openai.Thread{}, err
	}
	t, err := c.api.RetrieveThread(ctx, threadID)
	if err != nil {
		return openai.Thread{}, fmt.Errorf("retrieve thread %s: %w", threadID, err)
	}
	return t, nil
}

// DeleteThread удаляет тред.
func (c *AssistantsClient) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.wait(ctx, "delete thread"); err != nil {
		return err
	}
	resp, err := c.api.DeleteThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	if !resp.Deleted {
		utils.Warn("Thread delete not confirmed", "thread_id", threadID)
	}
	return nil
}

// CreateMessage добавляет в тред сообщение пользователя.
func (c *AssistantsClient) CreateMessage(ctx context.Context, threadID, content string) (openai.Message, error) {
	if err := c.wait(ctx, "create message"); err != nil {
		return openai.Message{}, err
	}
	m, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return openai.Message{}, fmt.Errorf("create message in thread %s: %w", threadID, err)
	}
	return m, nil
}

// ListMessages возвращает сообщения треда, новые первыми (порядок API по умолчанию).
func (c *AssistantsClient) ListMessages(ctx context.Context, threadID string) ([]openai.Message, error) {
	if err := c.wait(ctx, "list messages"); err != nil {
		return nil, err
	}
	list, err := c.api.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages in thread %s: %w", threadID, err)
	}
	return list.Messages, nil
}

// CreateRun запускает ассистента на треде.
func (c *AssistantsClient) CreateRun(ctx context.Context, threadID, assistantID string) (openai.Run, error) {
	if err := c.wait(ctx, "create run"); err != nil {
		return openai.Run{}, err
	}
	r, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return openai.Run{}, fmt.Errorf("create run in thread %s: %w", threadID, err)
	}
	return r, nil
}

// RetrieveRun возвращает снимок состояния run.
func (c *AssistantsClient) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	if err := c.wait(ctx, "retrieve run"); err != nil {
		return openai.Run{}, err
	}
	r, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return openai.Run{}, fmt.Errorf("retrieve run %s in thread %s: %w", runID, threadID, err)
	}
	return r, nil
}

// SubmitToolOutputs отправляет результаты инструментов одним вызовом.
func (c *AssistantsClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []openai.ToolOutput) (openai.Run, error) {
	if err := c.wait(ctx, "submit tool outputs"); err != nil {
		return openai.Run{}, err
	}
	r, err := c.api.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{ToolOutputs: outputs})
	if err != nil {
		return openai.Run{}, fmt.Errorf("submit tool outputs for run %s in thread %s: %w", runID, threadID, err)
	}
	return r, nil
}

// CancelRun просит API остановить run.
func (c *AssistantsClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if err := c.wait(ctx, "cancel run"); err != nil {
		return err
	}
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel run %s in thread %s: %w", runID, threadID, err)
	}
	return nil
}

// GetFile возвращает метаданные файла.
func (c *AssistantsClient) GetFile(ctx context.Context, fileID string) (openai.File, error) {
	if err := c.wait(ctx, "get file"); err != nil {
		return openai.File{}, err
	}
	f, err := c.api.GetFile(ctx, fileID)
	if err != nil {
		return openai.File{}, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return f, nil
}

// DownloadFile открывает поток с содержимым файла. Закрывает вызывающий.
func (c *AssistantsClient) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if err := c.wait(ctx, "download file"); err != nil {
		return nil, err
	}
	raw, err := c.api.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return raw.ReadCloser, nil
}

// Factory кэширует клиентов по API ключу, чтобы limiter был общим для всех
// вызовов с одним ключом.
type Factory struct {
	cfg config.OpenAIConfig

	mu      sync.Mutex
	clients map[string]*AssistantsClient
}

// NewFactory создаёт фабрику клиентов.
func NewFactory(cfg config.OpenAIConfig) *Factory {
	return &Factory{
		cfg:     cfg,
		clients: make(map[string]*AssistantsClient),
	}
}

// ForKey возвращает клиента для apiKey, создавая его при первом обращении.
func (f *Factory) ForKey(apiKey string) *AssistantsClient {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[apiKey]; ok {
		return c
	}
	c := NewAssistantsClient(apiKey, f.cfg)
	f.clients[apiKey] = c
	utils.Debug("OpenAI client created", "clients", len(f.clients))
	return c
}
