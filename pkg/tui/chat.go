// Package tui предоставляет ChatTui - терминальный чат с ассистентом.
//
// ChatTui не знает про OpenAI и про хранилище: он читает события run'а из
// events.Subscriber и отдаёт ввод пользователя в callback.
//
// # Layout
//
//	┌─────────────────────────────────────────────────┐
//	│ Poncho Assistant | Assistant: Analyst | Run: …  │ ← Status Bar
//	├─────────────────────────────────────────────────┤
//	│  [14:32:15] You: Plot last week sales           │
//	│  Tool: get_sales({"days":7})                    │
//	│  Result: get_sales (120ms)                      │
//	│  [14:32:20] Assistant: Here it is [image: ...]  │
//	├─────────────────────────────────────────────────┤
//	│ > user input here                               │ ← Input Area
//	└─────────────────────────────────────────────────┘
//
// # Basic Usage
//
//	emitter := events.NewChanEmitter(64)
//	chat := tui.NewChatTui(emitter.Subscribe(), tui.ChatConfig{Assistant: "Analyst"})
//	chat.OnInput(func(input string) {
//	    host.Run(ctx, app.RunRequest{AssistantID: id, ChatID: chatID, Input: input})
//	})
//	err := chat.Run(ctx)
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/ilkoid/poncho-assistants/pkg/events"
)

// maxArgsWidth - сколько символов аргументов инструмента показывать в логе.
const maxArgsWidth = 120

// ChatConfig конфигурирует ChatTui.
//
// Все поля опциональны, используются дефолтные значения если не заданы.
type ChatConfig struct {
	Colors ColorScheme

	// Title - заголовок в статус-баре
	Title string

	// Assistant - имя ассистента для статус-бара
	Assistant string

	InputPrompt string
	InputHeight int

	// ShowTimestamp - показывать время у реплик
	ShowTimestamp bool

	// MaxMessages - максимальное количество строк в логе (0 = безлимит)
	MaxMessages int

	// ShowThreads - писать в лог создание треда
	ShowThreads bool
}

// ChatTui - Bubble Tea модель чата.
type ChatTui struct {
	config     ChatConfig
	styles     styles
	subscriber events.Subscriber

	mu      sync.RWMutex
	onInput func(input string)

	log      transcript
	textarea textarea.Model
	width    int

	ready  bool
	busy   bool
	status string
}

// NewChatTui создаёт ChatTui поверх подписчика на события.
func NewChatTui(subscriber events.Subscriber, config ChatConfig) *ChatTui {
	if config.InputHeight == 0 {
		config.InputHeight = 3
	}
	if config.InputPrompt == "" {
		config.InputPrompt = "> "
	}
	if config.Colors.StatusForeground == "" {
		config.Colors = DefaultColorScheme()
	}
	if config.Title == "" {
		config.Title = "Poncho Assistant"
	}

	ta := textarea.New()
	ta.Placeholder = "Введите сообщение..."
	ta.Focus()
	ta.Prompt = config.InputPrompt
	ta.CharLimit = 4000
	ta.SetHeight(config.InputHeight)
	ta.ShowLineNumbers = false

	t := &ChatTui{
		config:     config,
		styles:     newStyles(config.Colors),
		subscriber: subscriber,
		log:        newTranscript(config.MaxMessages),
		textarea:   ta,
	}
	t.log.append(t.styles.system.Render("Type a message, Ctrl+C to quit."))
	return t
}

// OnInput устанавливает callback для ввода пользователя.
//
// Callback вызывается в отдельной горутине, пока он работает новый ввод
// не принимается.
func (t *ChatTui) OnInput(handler func(input string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onInput = handler
}

// Run запускает TUI (блокирующий вызов) до Ctrl+C или отмены ctx.
func (t *ChatTui) Run(ctx context.Context) error {
	p := tea.NewProgram(t, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// Init реализует tea.Model.
func (t *ChatTui) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, ReceiveEventCmd(t.subscriber))
}

// Update реализует tea.Model.
func (t *ChatTui) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		t.handleEvent(events.Event(msg))
		return t, ReceiveEventCmd(t.subscriber)

	case subscriberClosedMsg:
		return t, nil

	case tea.WindowSizeMsg:
		t.handleWindowSize(msg)
		return t, nil

	case tea.KeyMsg:
		if cmd, handled := t.handleKeyPress(msg); handled {
			return t, cmd
		}
	}

	var tiCmd, vpCmd tea.Cmd
	t.textarea, tiCmd = t.textarea.Update(msg)
	t.log.vp, vpCmd = t.log.vp.Update(msg)
	return t, tea.Batch(tiCmd, vpCmd)
}

func (t *ChatTui) handleEvent(event events.Event) {
	switch data := event.Data.(type) {
	case events.RunStartedData:
		t.busy = true
		t.status = "started"

	case events.ThreadData:
		if data.Created && t.config.ShowThreads {
			t.appendLine(t.styles.system.Render("New thread "+data.ThreadID), false)
		}

	case events.RunStatusData:
		t.status = data.Status

	case events.ToolCallData:
		args := truncate.StringWithTail(data.Args, maxArgsWidth, "...")
		t.appendLine(t.styles.toolCall.Render(fmt.Sprintf("Tool: %s(%s)", data.ToolName, args)), false)

	case events.ToolResultData:
		t.appendLine(t.styles.toolRes.Render(
			fmt.Sprintf("Result: %s (%dms)", data.ToolName, data.Duration.Milliseconds())), false)

	case events.MessageData:
		if event.Type == events.EventMessage {
			t.appendLine(t.styles.assistant.Render("Assistant: ")+plainReply(data.Content), true)
		}

	case events.ErrorData:
		t.appendLine(t.styles.err.Render("ERROR: "+data.Err.Error()), true)
	}

	if event.Type == events.EventDone || event.Type == events.EventError {
		t.busy = false
		t.status = ""
		t.textarea.Focus()
	}
}

func (t *ChatTui) handleWindowSize(msg tea.WindowSizeMsg) {
	t.width = msg.Width
	// статус-бар + разделитель + поле ввода
	footer := t.textarea.Height() + 1
	t.log.resize(msg.Width, msg.Height-1-footer)
	t.textarea.SetWidth(t.log.vp.Width)
	t.ready = true
}

// handleKeyPress возвращает handled=false для клавиш, которые надо отдать
// textarea и viewport.
func (t *ChatTui) handleKeyPress(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit, true

	case tea.KeyEnter:
		input := strings.TrimSpace(t.textarea.Value())
		if input == "" {
			return nil, true
		}
		if t.busy {
			t.appendLine(t.styles.system.Render("Run in progress, wait for the reply."), false)
			return nil, true
		}

		t.textarea.Reset()
		t.appendLine(t.styles.user.Render("You: ")+input, true)

		t.mu.RLock()
		handler := t.onInput
		t.mu.RUnlock()

		if handler != nil {
			t.busy = true
			go handler(input)
		}
		return nil, true
	}
	return nil, false
}

// View реализует tea.Model.
func (t *ChatTui) View() string {
	if !t.ready {
		return "Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s",
		t.styles.renderStatusBar(t.config.Title, t.config.Assistant, t.status),
		t.log.vp.View(),
		t.styles.renderDivider(t.log.vp.Width),
		t.textarea.View(),
	)
}

// Lines возвращает лог без ANSI кодов.
func (t *ChatTui) Lines() []string {
	out := make([]string, len(t.log.lines))
	for i, l := range t.log.lines {
		out[i] = stripANSICodes(l)
	}
	return out
}

// Busy сообщает, идёт ли сейчас run.
func (t *ChatTui) Busy() bool {
	return t.busy
}

func (t *ChatTui) appendLine(line string, withTimestamp bool) {
	if withTimestamp && t.config.ShowTimestamp {
		line = fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), line)
	}
	t.log.append(line)
}

var _ tea.Model = (*ChatTui)(nil)
