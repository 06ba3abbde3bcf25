package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/credentials"
	"github.com/ilkoid/poncho-assistants/pkg/debug"
	"github.com/ilkoid/poncho-assistants/pkg/events"
	"github.com/ilkoid/poncho-assistants/pkg/store"
	"github.com/ilkoid/poncho-assistants/pkg/tools"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// AssistantSource - откуда узел берёт сохранённых ассистентов.
type AssistantSource interface {
	Get(ctx context.Context, id string) (*store.StoredAssistant, error)
	List(ctx context.Context) ([]store.StoredAssistant, error)
}

// SessionSource - связь локального чата с удалённым тредом.
type SessionSource interface {
	FindByChatID(ctx context.Context, chatID string) (*store.StoredChatMessage, error)
}

// KeyResolver достаёт API ключ из записи кредов.
type KeyResolver interface {
	OpenAIKey(ctx context.Context, credentialID string) (string, error)
}

// Input - один вызов узла.
type Input struct {
	AssistantID string       // id сохранённого ассистента
	ChatID      string       // локальный чат; пусто = всегда новый тред
	Input       string       // текст пользователя
	Tools       []tools.Tool // локальные инструменты, доступные ассистенту
}

// AssistantEcho - идентификаторы удалённых сущностей и сырые сообщения треда.
type AssistantEcho struct {
	AssistantID string           `json:"assistantId"`
	ThreadID    string           `json:"threadId"`
	RunID       string           `json:"runId"`
	Messages    []openai.Message `json:"messages"`
}

// Result - итог вызова узла.
type Result struct {
	Text      string        `json:"text"`
	UsedTools []UsedTool    `json:"usedTools"`
	Assistant AssistantEcho `json:"assistant"`
}

// AssistantOption - элемент списка ассистентов для UI выбора.
type AssistantOption struct {
	Label       string `json:"label"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ClearRequest - что очистить. SessionID (id треда) приоритетнее ChatID.
type ClearRequest struct {
	AssistantID string
	SessionID   string
	ChatID      string
}

// Option настраивает Node.
type Option func(*Node)

// WithPollPolicy задаёт границы опроса run.
func WithPollPolicy(p PollPolicy) Option {
	return func(n *Node) { n.policy = p.normalize() }
}

// WithEmitter подключает получателя событий run.
func WithEmitter(e events.Emitter) Option {
	return func(n *Node) {
		if e != nil {
			n.emitter = e
		}
	}
}

// WithMetrics подключает prometheus метрики.
func WithMetrics(m *Metrics) Option {
	return func(n *Node) { n.metrics = m }
}

// WithRenderer задаёт рендерер ответа (кэш картинок, ресайз).
func WithRenderer(r *Renderer) Option {
	return func(n *Node) {
		if r != nil {
			n.renderer = r
		}
	}
}

// WithTraces включает запись JSON трейса на каждый вызов Run.
func WithTraces(cfg debug.RecorderConfig) Option {
	return func(n *Node) { n.traces = &cfg }
}

// Node исполняет сохранённых OpenAI ассистентов.
//
// Thread-safe: состояние одного вызова живёт на стеке Run.
type Node struct {
	assistants AssistantSource
	sessions   SessionSource
	keys       KeyResolver
	clients    ClientFactory

	policy   PollPolicy
	renderer *Renderer
	emitter  events.Emitter
	metrics  *Metrics
	traces   *debug.RecorderConfig
}

// NewNode собирает узел.
func NewNode(assistants AssistantSource, sessions SessionSource, keys KeyResolver, clients ClientFactory, opts ...Option) *Node {
	n := &Node{
		assistants: assistants,
		sessions:   sessions,
		keys:       keys,
		clients:    clients,
		policy:     PollPolicy{}.normalize(),
		renderer:   NewRenderer(nil, 0, 0),
		emitter:    events.Nop{},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.renderer.metrics = n.metrics
	return n
}

// resolved - ассистент, готовый к вызовам API.
type resolved struct {
	stored  *store.StoredAssistant
	details store.AssistantDetails
	api     API
}

// resolve загружает ассистента и авторизует клиента его ключом.
func (n *Node) resolve(ctx context.Context, assistantID string) (*resolved, error) {
	if assistantID == "" {
		return nil, fmt.Errorf("%w: empty assistant id", ErrAssistantNotFound)
	}

	stored, err := n.assistants.Get(ctx, assistantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAssistantNotFound, assistantID)
	}
	if err != nil {
		return nil, err
	}

	details, err := stored.ParseDetails()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssistantNotFound, err)
	}

	key, err := n.keys.OpenAIKey(ctx, stored.Credential)
	if errors.Is(err, credentials.ErrMissing) {
		return nil, fmt.Errorf("%w: assistant %s: %v", ErrCredentialMissing, assistantID, err)
	}
	if err != nil {
		return nil, err
	}

	return &resolved{stored: stored, details: details, api: n.clients(key)}, nil
}

// Run исполняет один ход диалога.
//
// Любая ошибка прерывает вызов целиком, частичного результата нет.
func (n *Node) Run(ctx context.Context, in Input) (*Result, error) {
	n, rec := n.forCall()
	if rec != nil {
		defer n.finishTrace(rec, time.Now())
	}

	start := time.Now()
	result, err := n.run(ctx, in)
	if err != nil {
		var failed *RunFailedError
		label := "error"
		if errors.As(err, &failed) {
			label = "failed"
		}
		n.metrics.RecordRun(label, time.Since(start))
		n.emitter.Emit(ctx, events.New(events.EventError, events.ErrorData{Err: err}))
		utils.Error("Assistant run failed", "assistant", in.AssistantID, "chat_id", in.ChatID, "error", err)
		return nil, err
	}

	n.metrics.RecordRun("completed", time.Since(start))
	n.emitter.Emit(ctx, events.New(events.EventDone, events.MessageData{Content: result.Text}))
	utils.Info("Assistant run completed",
		"assistant", in.AssistantID,
		"thread_id", result.Assistant.ThreadID,
		"run_id", result.Assistant.RunID,
		"used_tools", len(result.UsedTools),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// forCall возвращает узел для одного вызова. При включённых трейсах это копия
// с эмиттером, который пишет ещё и в рекордер этого вызова.
func (n *Node) forCall() (*Node, *debug.Recorder) {
	if n.traces == nil {
		return n, nil
	}
	rec, err := debug.NewRecorder(*n.traces)
	if err != nil {
		utils.Warn("Trace recorder disabled", "error", err)
		return n, nil
	}
	c := *n
	c.emitter = events.Fanout{n.emitter, rec}
	return &c, rec
}

func (n *Node) finishTrace(rec *debug.Recorder, start time.Time) {
	path, err := rec.Finalize(time.Since(start))
	if err != nil {
		utils.Warn("Failed to save run trace", "error", err)
		return
	}
	utils.Debug("Run trace saved", "path", path)
}

func (n *Node) run(ctx context.Context, in Input) (*Result, error) {
	n.emitter.Emit(ctx, events.New(events.EventRunStarted, events.RunStartedData{
		AssistantID: in.AssistantID,
		ChatID:      in.ChatID,
		Input:       in.Input,
	}))

	res, err := n.resolve(ctx, in.AssistantID)
	if err != nil {
		return nil, err
	}
	remoteID := res.details.ID

	registry := tools.NewRegistry()
	for _, t := range in.Tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("invalid tool: %w", err)
		}
	}

	if _, err := reconcileTools(ctx, res.api, remoteID, registry.List()); err != nil {
		return nil, err
	}

	threadID, err := n.thread(ctx, res.api, in.ChatID)
	if err != nil {
		return nil, err
	}

	if _, err := res.api.CreateMessage(ctx, threadID, in.Input); err != nil {
		return nil, err
	}

	run, err := res.api.CreateRun(ctx, threadID, remoteID)
	if err != nil {
		return nil, err
	}
	utils.Info("Run created", "assistant_id", remoteID, "thread_id", threadID, "run_id", run.ID)

	used, err := n.drive(ctx, res.api, threadID, run.ID, registry)
	if err != nil {
		return nil, err
	}

	messages, err := res.api.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	text := ""
	if msg, ok := latestAssistantMessage(messages); ok {
		text = n.renderer.Render(ctx, res.api, msg)
	} else {
		utils.Warn("No assistant message in thread", "thread_id", threadID, "run_id", run.ID)
	}
	n.emitter.Emit(ctx, events.New(events.EventMessage, events.MessageData{Content: text}))

	if used == nil {
		used = []UsedTool{}
	}
	return &Result{
		Text:      text,
		UsedTools: used,
		Assistant: AssistantEcho{
			AssistantID: remoteID,
			ThreadID:    threadID,
			RunID:       run.ID,
			Messages:    messages,
		},
	}, nil
}

// thread возвращает тред чата: существующий из сохранённой сессии или новый.
//
// Удалённо удалённый тред не восстанавливается: ошибка RetrieveThread
// возвращается как есть.
func (n *Node) thread(ctx context.Context, api API, chatID string) (string, error) {
	if chatID != "" {
		session, err := n.sessions.FindByChatID(ctx, chatID)
		switch {
		case err == nil:
			t, err := api.RetrieveThread(ctx, session.SessionID)
			if err != nil {
				return "", err
			}
			n.emitter.Emit(ctx, events.New(events.EventThread, events.ThreadData{ThreadID: t.ID}))
			return t.ID, nil
		case !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}

	t, err := api.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	utils.Info("Thread created", "thread_id", t.ID, "chat_id", chatID)
	n.emitter.Emit(ctx, events.New(events.EventThread, events.ThreadData{ThreadID: t.ID, Created: true}))
	return t.ID, nil
}

// drive крутит цикл опрос -> инструменты -> опрос, пока run не завершится.
func (n *Node) drive(ctx context.Context, api API, threadID, runID string, registry *tools.Registry) ([]UsedTool, error) {
	poller := NewPoller(api, n.policy, func(run openai.Run, poll int) {
		n.metrics.RecordPoll()
		utils.Debug("Run polled", "run_id", run.ID, "status", run.Status, "poll", poll)
		n.emitter.Emit(ctx, events.New(events.EventRunStatus, events.RunStatusData{
			RunID:  run.ID,
			Status: string(run.Status),
			Poll:   poll,
		}))
	})
	exec := &toolExecutor{registry: registry, emitter: n.emitter, metrics: n.metrics}

	var used []UsedTool
	for {
		outcome, err := poller.Poll(ctx, threadID, runID)
		if err != nil {
			n.cancelRun(api, threadID, runID, err)
			return nil, err
		}

		switch o := outcome.(type) {
		case Completed:
			return used, nil

		case Failed:
			return nil, &RunFailedError{ThreadID: threadID, RunID: runID, Status: o.Status, Reason: o.Reason}

		case NeedsAction:
			outputs, records, err := exec.execute(ctx, threadID, runID, o.Calls)
			if err != nil {
				n.cancelRun(api, threadID, runID, err)
				return nil, err
			}
			if _, err := api.SubmitToolOutputs(ctx, threadID, runID, outputs); err != nil {
				n.cancelRun(api, threadID, runID, err)
				return nil, err
			}
			used = append(used, records...)

		default:
			return nil, fmt.Errorf("unexpected poll outcome %T", outcome)
		}
	}
}

// cancelRun просит API остановить брошенный run, чтобы тред не остался
// заблокированным активным run. Ошибка отмены только логируется.
func (n *Node) cancelRun(api API, threadID, runID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.CancelRun(ctx, threadID, runID); err != nil {
		utils.Warn("Failed to cancel abandoned run", "thread_id", threadID, "run_id", runID, "error", err)
		return
	}
	utils.Info("Abandoned run cancelled", "thread_id", threadID, "run_id", runID, "cause", cause)
}

// ClearSession удаляет удалённый тред сессии.
//
// Тред берётся из SessionID, а если он пуст - из последней сессии ChatID.
// Все ошибки возвращаются; решать, проглотить их или нет, вызывающему.
func (n *Node) ClearSession(ctx context.Context, req ClearRequest) error {
	res, err := n.resolve(ctx, req.AssistantID)
	if err != nil {
		return err
	}

	threadID := req.SessionID
	if threadID == "" && req.ChatID != "" {
		session, err := n.sessions.FindByChatID(ctx, req.ChatID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: chat %s", ErrSessionNotFound, req.ChatID)
		}
		if err != nil {
			return err
		}
		threadID = session.SessionID
	}
	if threadID == "" {
		return fmt.Errorf("%w: neither session id nor chat id given", ErrSessionNotFound)
	}

	if err := res.api.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	utils.Info("Thread deleted", "assistant", req.AssistantID, "thread_id", threadID)
	return nil
}

// ListAssistants возвращает сохранённых ассистентов для UI выбора.
// Записи с битыми details пропускаются.
func (n *Node) ListAssistants(ctx context.Context) ([]AssistantOption, error) {
	stored, err := n.assistants.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]AssistantOption, 0, len(stored))
	for i := range stored {
		details, err := stored[i].ParseDetails()
		if err != nil {
			utils.Warn("Skipping assistant with invalid details", "id", stored[i].ID, "error", err)
			continue
		}
		out = append(out, AssistantOption{
			Label:       details.Name,
			Name:        stored[i].ID,
			Description: details.Instructions,
		})
	}
	return out, nil
}
