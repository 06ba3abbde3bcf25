package debug

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ilkoid/poncho-assistants/pkg/events"
)

// Recorder собирает RunTrace из событий узла и сохраняет его в JSON файл.
//
// Реализует events.Emitter. Один Recorder - один вызов узла.
// Потокобезопасен.
type Recorder struct {
	mu sync.Mutex

	config RecorderConfig
	trace  RunTrace

	// pendingArgs - аргументы последнего tool_call по имени инструмента
	pendingArgs map[string]string
	visited     map[string]struct{}
}

var _ events.Emitter = (*Recorder)(nil)

// RecorderConfig конфигурация для создания Recorder.
type RecorderConfig struct {
	// Dir - директория для сохранения трейсов
	Dir string

	// IncludeToolArgs - включать аргументы инструментов в трейс
	IncludeToolArgs bool

	// IncludeToolResults - включать результаты инструментов в трейс
	IncludeToolResults bool

	// MaxResultSize - максимальный размер результата инструмента и ответа
	// (превышение обрезается). 0 означает без ограничений
	MaxResultSize int
}

// NewRecorder создает Recorder. Если Dir не существует, пытается создать её.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create traces directory: %w", err)
		}
	}

	now := time.Now()
	return &Recorder{
		config: cfg,
		trace: RunTrace{
			// время в имени для сортировки, uuid - против коллизий параллельных вызовов
			TraceID:   fmt.Sprintf("trace_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8]),
			Timestamp: now,
		},
		pendingArgs: make(map[string]string),
		visited:     make(map[string]struct{}),
	}, nil
}

// Emit записывает событие в трейс.
func (r *Recorder) Emit(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch data := event.Data.(type) {
	case events.RunStartedData:
		r.trace.AssistantID = data.AssistantID
		r.trace.ChatID = data.ChatID
		r.trace.Input = data.Input

	case events.ThreadData:
		r.trace.ThreadID = data.ThreadID
		r.trace.ThreadCreated = data.Created

	case events.RunStatusData:
		r.trace.RunID = data.RunID
		r.trace.Polls = append(r.trace.Polls, PollEntry{Poll: data.Poll, Status: data.Status, At: event.Timestamp})

	case events.ToolCallData:
		r.pendingArgs[data.ToolName] = data.Args

	case events.ToolResultData:
		r.recordTool(data)

	case events.MessageData:
		if event.Type == events.EventMessage {
			r.trace.FinalResult, _ = truncateString(data.Content, r.config.MaxResultSize)
		}

	case events.ErrorData:
		if data.Err != nil {
			r.trace.Error = data.Err.Error()
		}
	}
}

func (r *Recorder) recordTool(data events.ToolResultData) {
	exec := ToolExecution{Name: data.ToolName, Duration: data.Duration.Milliseconds()}
	if r.config.IncludeToolArgs {
		exec.Args = r.pendingArgs[data.ToolName]
	}
	delete(r.pendingArgs, data.ToolName)
	if r.config.IncludeToolResults {
		exec.Result, exec.ResultTruncated = truncateString(data.Result, r.config.MaxResultSize)
	}

	r.trace.ToolsExecuted = append(r.trace.ToolsExecuted, exec)
	if _, ok := r.visited[data.ToolName]; !ok {
		r.visited[data.ToolName] = struct{}{}
		r.trace.Summary.VisitedTools = append(r.trace.Summary.VisitedTools, data.ToolName)
	}
}

// Finalize завершает запись и сохраняет трейс в файл.
//
// Возвращает путь к сохраненному файлу или ошибку.
func (r *Recorder) Finalize(duration time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.trace.Duration = duration.Milliseconds()
	r.buildSummary()

	data, err := json.MarshalIndent(r.trace, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	filePath := filepath.Join(r.config.Dir, r.trace.TraceID+".json")
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	return filePath, nil
}

func (r *Recorder) buildSummary() {
	s := &r.trace.Summary
	s.TotalPolls = len(r.trace.Polls)
	if s.TotalPolls > 0 {
		s.LastStatus = r.trace.Polls[s.TotalPolls-1].Status
	}
	s.TotalToolsExecuted = len(r.trace.ToolsExecuted)
	s.TotalToolDuration = 0
	for _, t := range r.trace.ToolsExecuted {
		s.TotalToolDuration += t.Duration
	}
}

// Trace возвращает копию накопленного трейса.
func (r *Recorder) Trace() RunTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trace
}

// truncateString обрезает строку и сообщает, была ли обрезка.
func truncateString(s string, maxSize int) (string, bool) {
	if maxSize <= 0 || len(s) <= maxSize {
		return s, false
	}
	return s[:maxSize] + "... (truncated)", true
}
