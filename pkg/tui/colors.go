package tui

import "github.com/charmbracelet/lipgloss"

// ColorScheme определяет цвета для различных элементов TUI.
//
// Каждое поле - это lipgloss.Color (может быть hex, ANSI, или named color).
type ColorScheme struct {
	// Status Bar
	StatusBackground lipgloss.Color
	StatusForeground lipgloss.Color

	// Messages
	SystemMessage    lipgloss.Color // системные сообщения (серый)
	UserMessage      lipgloss.Color // сообщения пользователя (желтый)
	AssistantMessage lipgloss.Color // ответы ассистента (cyan)
	ErrorMessage     lipgloss.Color // ошибки (красный)
	ToolCall         lipgloss.Color
	ToolResult       lipgloss.Color

	Border lipgloss.Color
}

// ColorSchemes предоставляет предустановленные цветовые схемы.
var ColorSchemes = map[string]ColorScheme{
	"default": {
		StatusBackground: lipgloss.Color("235"),
		StatusForeground: lipgloss.Color("252"),
		SystemMessage:    lipgloss.Color("242"),
		UserMessage:      lipgloss.Color("226"),
		AssistantMessage: lipgloss.Color("86"),
		ErrorMessage:     lipgloss.Color("196"),
		ToolCall:         lipgloss.Color("228"),
		ToolResult:       lipgloss.Color("154"),
		Border:           lipgloss.Color("240"),
	},
	"dark": {
		StatusBackground: lipgloss.Color("0"),
		StatusForeground: lipgloss.Color("15"),
		SystemMessage:    lipgloss.Color("8"),
		UserMessage:      lipgloss.Color("11"),
		AssistantMessage: lipgloss.Color("14"),
		ErrorMessage:     lipgloss.Color("9"),
		ToolCall:         lipgloss.Color("3"),
		ToolResult:       lipgloss.Color("2"),
		Border:           lipgloss.Color("4"),
	},
	"light": {
		StatusBackground: lipgloss.Color("255"),
		StatusForeground: lipgloss.Color("0"),
		SystemMessage:    lipgloss.Color("8"),
		UserMessage:      lipgloss.Color("130"),
		AssistantMessage: lipgloss.Color("31"),
		ErrorMessage:     lipgloss.Color("1"),
		ToolCall:         lipgloss.Color("94"),
		ToolResult:       lipgloss.Color("28"),
		Border:           lipgloss.Color("8"),
	},
	"dracula": {
		StatusBackground: lipgloss.Color("#282a36"),
		StatusForeground: lipgloss.Color("#f8f8f2"),
		SystemMessage:    lipgloss.Color("#6272a4"),
		UserMessage:      lipgloss.Color("#f1fa8c"),
		AssistantMessage: lipgloss.Color("#8be9fd"),
		ErrorMessage:     lipgloss.Color("#ff5555"),
		ToolCall:         lipgloss.Color("#ffb86c"),
		ToolResult:       lipgloss.Color("#50fa7b"),
		Border:           lipgloss.Color("#44475a"),
	},
}

// DefaultColorScheme возвращает схему по умолчанию.
func DefaultColorScheme() ColorScheme {
	return ColorSchemes["default"]
}

// GetColorScheme возвращает цветовую схему по имени.
//
// Если схема не найдена, возвращает default.
func GetColorScheme(name string) ColorScheme {
	if scheme, ok := ColorSchemes[name]; ok {
		return scheme
	}
	return DefaultColorScheme()
}
