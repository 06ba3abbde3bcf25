package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// styles - набор стилей, собранный из ColorScheme.
type styles struct {
	system    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	err       lipgloss.Style
	toolCall  lipgloss.Style
	toolRes   lipgloss.Style
	status    lipgloss.Style
	divider   lipgloss.Style
}

func newStyles(c ColorScheme) styles {
	return styles{
		system:    lipgloss.NewStyle().Foreground(c.SystemMessage),
		user:      lipgloss.NewStyle().Foreground(c.UserMessage).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(c.AssistantMessage).Bold(true),
		err:       lipgloss.NewStyle().Foreground(c.ErrorMessage).Bold(true),
		toolCall:  lipgloss.NewStyle().Foreground(c.ToolCall),
		toolRes:   lipgloss.NewStyle().Foreground(c.ToolResult),
		status:    lipgloss.NewStyle().Foreground(c.StatusForeground).Background(c.StatusBackground).Bold(true),
		divider:   lipgloss.NewStyle().Foreground(c.Border),
	}
}

// renderStatusBar рендерит однострочный статус-бар.
func (s styles) renderStatusBar(title, assistant, status string) string {
	if assistant == "" {
		assistant = "N/A"
	}
	if status == "" {
		status = "idle"
	}
	return s.status.Render(" " + title + " | Assistant: " + assistant + " | Run: " + status + " ")
}

func (s styles) renderDivider(width int) string {
	if width <= 0 {
		return ""
	}
	return s.divider.Render(strings.Repeat("─", width))
}

// В терминале data URI картинки бесполезен, показываем только alt.
var imgTagRe = regexp.MustCompile(`<img\s[^>]*?alt="([^"]*)"[^>]*?/?>`)

// plainReply заменяет <img> теги ответа на [image: alt].
func plainReply(text string) string {
	return imgTagRe.ReplaceAllString(text, "[image: $1]")
}

// stripANSICodes удаляет ANSI escape коды из строки.
func stripANSICodes(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0x1B {
			i++
			for i < len(s) && (s[i] < '@' || s[i] > '~') {
				i++
			}
			if i < len(s) {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
