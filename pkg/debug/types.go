// Package debug записывает трейсы run'ов ассистента в JSON файлы.
//
// Трейс собирается из событий узла (pkg/events) и сохраняется после
// завершения вызова, чтобы потом разобрать, сколько было опросов,
// какие инструменты вызывались и чем всё закончилось.
package debug

import "time"

// RunTrace - полный трейс одного вызова узла.
type RunTrace struct {
	// TraceID - уникальный идентификатор трейса (используется в имени файла)
	TraceID string `json:"trace_id"`

	// Timestamp - время начала вызова
	Timestamp time.Time `json:"timestamp"`

	AssistantID string `json:"assistant_id"`
	ChatID      string `json:"chat_id,omitempty"`
	Input       string `json:"input"`

	ThreadID      string `json:"thread_id,omitempty"`
	ThreadCreated bool   `json:"thread_created,omitempty"`
	RunID         string `json:"run_id,omitempty"`

	// Duration - общая длительность в миллисекундах
	Duration int64 `json:"duration_ms"`

	Polls         []PollEntry     `json:"polls,omitempty"`
	ToolsExecuted []ToolExecution `json:"tools_executed,omitempty"`

	Summary Summary `json:"summary"`

	// FinalResult - отрендеренный ответ (может быть обрезан по MaxResultSize)
	FinalResult string `json:"final_result,omitempty"`

	// Error - ошибка если вызов завершился неудачно
	Error string `json:"error,omitempty"`
}

// PollEntry - один опрос статуса run.
type PollEntry struct {
	Poll   int       `json:"poll"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// ToolExecution описывает выполнение одного инструмента.
type ToolExecution struct {
	Name string `json:"name"`

	// Args - аргументы (пусто если IncludeToolArgs выключен)
	Args string `json:"args,omitempty"`

	// Result - результат (может быть обрезан по MaxResultSize)
	Result string `json:"result,omitempty"`

	ResultTruncated bool `json:"result_truncated,omitempty"`

	// Duration - длительность выполнения в миллисекундах
	Duration int64 `json:"duration_ms"`
}

// Summary содержит агрегированную статистику вызова.
type Summary struct {
	TotalPolls         int   `json:"total_polls"`
	TotalToolsExecuted int   `json:"total_tools_executed"`
	TotalToolDuration  int64 `json:"total_tool_duration_ms"`

	// LastStatus - последний увиденный статус run
	LastStatus string `json:"last_status,omitempty"`

	// VisitedTools - уникальные инструменты в порядке первого вызова
	VisitedTools []string `json:"visited_tools,omitempty"`
}
