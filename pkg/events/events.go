// Package events предоставляет интерфейсы для реализации Port & Adapter паттерна.
//
// Это Port (интерфейс) для подписки на события выполнения run'а ассистента.
// Позволяет подключать любые UI (TUI, HTTP, CLI) без изменения логики узла.
//
// # Basic Usage
//
//	emitter := events.NewChanEmitter(64)
//	node := assistant.NewNode(assistants, sessions, keys, clients, assistant.WithEmitter(emitter))
//
//	sub := emitter.Subscribe()
//	for event := range sub.Events() {
//	    switch event.Type {
//	    case events.EventRunStatus:
//	        ui.showStatus(event.Data)
//	    case events.EventMessage:
//	        ui.showMessage(event.Data)
//	    }
//	}
//
// # Thread Safety
//
// Все реализации интерфейсов должны быть thread-safe.
package events

import (
	"context"
	"time"
)

// EventType представляет тип события run'а.
type EventType string

const (
	// EventRunStarted отправляется перед обращением к удалённому API.
	EventRunStarted EventType = "run_started"

	// EventThread отправляется когда тред создан или найден.
	EventThread EventType = "thread"

	// EventRunStatus отправляется на каждый опрос run'а.
	EventRunStatus EventType = "run_status"

	// EventToolCall отправляется когда ассистент вызывает локальный инструмент.
	EventToolCall EventType = "tool_call"

	// EventToolResult отправляется когда инструмент вернул результат.
	EventToolResult EventType = "tool_result"

	// EventMessage отправляется с отрендеренным ответом ассистента.
	EventMessage EventType = "message"

	// EventError отправляется при ошибке.
	EventError EventType = "error"

	// EventDone отправляется когда run завершён.
	EventDone EventType = "done"
)

// EventData - sealed interface для данных события.
//
// Только типы из пакета events могут реализовать этот интерфейс.
type EventData interface {
	eventData()
}

// RunStartedData содержит данные для EventRunStarted.
type RunStartedData struct {
	AssistantID string
	ChatID      string
	Input       string
}

func (RunStartedData) eventData() {}

// ThreadData содержит данные для EventThread.
type ThreadData struct {
	ThreadID string
	Created  bool
}

func (ThreadData) eventData() {}

// RunStatusData содержит данные для EventRunStatus.
type RunStatusData struct {
	RunID  string
	Status string
	Poll   int
}

func (RunStatusData) eventData() {}

// ToolCallData содержит данные о вызове инструмента.
type ToolCallData struct {
	ToolName string
	Args     string
}

func (ToolCallData) eventData() {}

// ToolResultData содержит результат выполнения инструмента.
type ToolResultData struct {
	ToolName string
	Result   string
	Duration time.Duration
}

func (ToolResultData) eventData() {}

// MessageData содержит данные для EventMessage и EventDone.
type MessageData struct {
	Content string
}

func (MessageData) eventData() {}

// ErrorData содержит данные для EventError.
type ErrorData struct {
	Err error
}

func (ErrorData) eventData() {}

// Event представляет событие run'а.
//
// Для каждого EventType существует соответствующий тип данных:
//   - EventRunStarted: RunStartedData
//   - EventThread: ThreadData
//   - EventRunStatus: RunStatusData
//   - EventToolCall: ToolCallData
//   - EventToolResult: ToolResultData
//   - EventMessage, EventDone: MessageData
//   - EventError: ErrorData
type Event struct {
	Type      EventType
	Data      EventData
	Timestamp time.Time
}

// New собирает событие с текущим временем.
func New(t EventType, data EventData) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now()}
}

// Emitter - это Port для отправки событий.
type Emitter interface {
	// Emit отправляет событие. Если context отменён, операция прерывается.
	Emit(ctx context.Context, event Event)
}

// Subscriber позволяет читать события из канала.
type Subscriber interface {
	// Events возвращает read-only канал событий.
	//
	// Канал закрывается при вызове Close() у эмиттера.
	Events() <-chan Event

	// Close освобождает ресурсы подписчика.
	Close()
}

// Nop - эмиттер, который ничего не делает.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Fanout рассылает событие нескольким эмиттерам по порядку. nil пропускаются.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}
