package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/credentials"
	"github.com/ilkoid/poncho-assistants/pkg/store"
	"github.com/ilkoid/poncho-assistants/pkg/tools"
)

// fakeAPI - сценарный Assistants API в памяти.
type fakeAPI struct {
	mu sync.Mutex

	assistant  openai.Assistant
	modifyReqs []openai.AssistantRequest

	threadsCreated   int
	retrievedThreads []string
	missingThreads   map[string]bool
	deletedThreads   []string

	messagesCreated []string
	runsCreated     []string // assistant ids

	// runs - ответы RetrieveRun по очереди, последний повторяется
	runs      []openai.Run
	polls     int
	onPoll    func(polls int)
	submits   [][]openai.ToolOutput
	submitErr error
	cancelled int

	messages []openai.Message

	files         map[string]openai.File
	fileContent   map[string]string
	downloadErr   error
	getFileCalls  int
	downloadCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		assistant:      openai.Assistant{ID: "asst_remote", Model: "gpt-4o"},
		missingThreads: map[string]bool{},
		files:          map[string]openai.File{},
		fileContent:    map[string]string{},
	}
}

func (f *fakeAPI) RetrieveAssistant(ctx context.Context, id string) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.assistant.ID {
		return openai.Assistant{}, fmt.Errorf("retrieve assistant %s: not found", id)
	}
	return f.assistant, nil
}

func (f *fakeAPI) ModifyAssistant(ctx context.Context, id string, req openai.AssistantRequest) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifyReqs = append(f.modifyReqs, req)
	f.assistant.Tools = req.Tools
	return f.assistant, nil
}

func (f *fakeAPI) CreateThread(ctx context.Context) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadsCreated++
	return openai.Thread{ID: fmt.Sprintf("thread_new_%d", f.threadsCreated)}, nil
}

func (f *fakeAPI) RetrieveThread(ctx context.Context, id string) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrievedThreads = append(f.retrievedThreads, id)
	if f.missingThreads[id] {
		return openai.Thread{}, fmt.Errorf("retrieve thread %s: no thread found", id)
	}
	return openai.Thread{ID: id}, nil
}

func (f *fakeAPI) DeleteThread(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedThreads = append(f.deletedThreads, id)
	return nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID, content string) (openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messagesCreated = append(f.messagesCreated, threadID+"|"+content)
	return openai.Message{ID: "msg_user", Role: openai.ChatMessageRoleUser}, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, threadID string) ([]openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages, nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID, assistantID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runsCreated = append(f.runsCreated, assistantID)
	return openai.Run{ID: "run_1", ThreadID: threadID, Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return openai.Run{}, errors.New("no scripted runs")
	}
	i := f.polls
	if i >= len(f.runs) {
		i = len(f.runs) - 1
	}
	f.polls++
	if f.onPoll != nil {
		f.onPoll(f.polls)
	}
	run := f.runs[i]
	run.ID = runID
	run.ThreadID = threadID
	return run, nil
}

func (f *fakeAPI) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []openai.ToolOutput) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return openai.Run{}, f.submitErr
	}
	f.submits = append(f.submits, outputs)
	return openai.Run{ID: runID, Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) CancelRun(ctx context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

func (f *fakeAPI) GetFile(ctx context.Context, fileID string) (openai.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFileCalls++
	file, ok := f.files[fileID]
	if !ok {
		return openai.File{}, fmt.Errorf("get file %s: not found", fileID)
	}
	return file, nil
}

func (f *fakeAPI) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return io.NopCloser(strings.NewReader(f.fileContent[fileID])), nil
}

var _ API = (*fakeAPI)(nil)

// fakeAssistants - таблица assistant в памяти.
type fakeAssistants map[string]*store.StoredAssistant

func (f fakeAssistants) Get(ctx context.Context, id string) (*store.StoredAssistant, error) {
	a, ok := f[id]
	if !ok {
		return nil, &store.NotFoundError{Table: "assistant", Key: id}
	}
	return a, nil
}

func (f fakeAssistants) List(ctx context.Context) ([]store.StoredAssistant, error) {
	var out []store.StoredAssistant
	for _, id := range []string{"a1", "a2", "broken"} {
		if a, ok := f[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

// fakeSessions - chat id -> thread id.
type fakeSessions map[string]string

func (f fakeSessions) FindByChatID(ctx context.Context, chatID string) (*store.StoredChatMessage, error) {
	thread, ok := f[chatID]
	if !ok {
		return nil, &store.NotFoundError{Table: "chat_message", Key: chatID}
	}
	return &store.StoredChatMessage{ChatID: chatID, SessionID: thread}, nil
}

// fakeKeys - credential id -> api key.
type fakeKeys map[string]string

func (f fakeKeys) OpenAIKey(ctx context.Context, credentialID string) (string, error) {
	key, ok := f[credentialID]
	if !ok || key == "" {
		return "", fmt.Errorf("%w: credential '%s'", credentials.ErrMissing, credentialID)
	}
	return key, nil
}

// recordingTool запоминает аргументы вызовов.
type recordingTool struct {
	name   string
	output string
	err    error

	mu    sync.Mutex
	calls []string
}

func (t *recordingTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        t.name,
		Description: "test tool " + t.name,
		Parameters: tools.JSONSchema{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
		},
	}
}

func (t *recordingTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, argsJSON)
	return t.output, t.err
}

// bareTool - инструмент без аргументов.
type bareTool struct{ name string }

func (t *bareTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{Name: t.name, Description: "no arguments"}
}

func (t *bareTool) Execute(ctx context.Context, argsJSON string) (string, error) {
	return "pong", nil
}

func fastPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Millisecond,
		MaxInterval: time.Millisecond,
		Backoff:     1,
		MaxPolls:    50,
		StallLimit:  3,
	}
}

// newTestNode собирает узел с одним ассистентом "a1" (ключ "sk-1").
func newTestNode(api *fakeAPI, sessions fakeSessions, opts ...Option) *Node {
	assistants := fakeAssistants{
		"a1": {ID: "a1", Credential: "cred-1", Details: `{"id":"asst_remote","name":"Helper","instructions":"Be nice"}`},
	}
	keys := fakeKeys{"cred-1": "sk-1"}
	opts = append([]Option{WithPollPolicy(fastPolicy())}, opts...)
	return NewNode(assistants, sessions, keys, func(apiKey string) API { return api }, opts...)
}

func textMessage(role string, parts ...string) openai.Message {
	msg := openai.Message{ID: "msg_" + role, Role: role}
	for _, p := range parts {
		msg.Content = append(msg.Content, openai.MessageContent{
			Type: "text",
			Text: &openai.MessageText{Value: p},
		})
	}
	return msg
}

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:       id,
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: name, Arguments: args},
	}
}

func requiresAction(calls ...openai.ToolCall) openai.Run {
	return openai.Run{
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			Type:              openai.RequiredActionTypeSubmitToolOutputs,
			SubmitToolOutputs: &openai.SubmitToolOutputs{ToolCalls: calls},
		},
	}
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

// memImages - ImageStore в памяти.
type memImages struct {
	stored []string
}

func (m *memImages) Store(ctx context.Context, name string, r io.Reader) (string, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	m.stored = append(m.stored, name)
	return "/mem/" + name + ".png", data, nil
}

func countSubstr(s, sub string) int {
	return strings.Count(s, sub)
}
