package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/muesli/reflow/wrap"
)

// transcript хранит исходные строки лога и держит viewport в синхроне с ними.
//
// Строки хранятся без переноса: при смене ширины всё переразбивается заново.
type transcript struct {
	vp    viewport.Model
	lines []string
	max   int
}

func newTranscript(maxLines int) transcript {
	return transcript{vp: viewport.New(0, 0), max: maxLines}
}

// append добавляет строку. Автоскролл вниз только если пользователь был внизу.
func (t *transcript) append(line string) {
	t.lines = append(t.lines, line)
	if t.max > 0 && len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}

	wasAtBottom := t.atBottom()
	t.vp.SetContent(t.wrapped())
	if wasAtBottom {
		t.vp.GotoBottom()
	}
}

// resize меняет размеры. wasAtBottom считается ДО смены высоты.
func (t *transcript) resize(width, height int) {
	if height < 1 {
		height = 1
	}
	if width < 20 {
		width = 20
	}

	wasAtBottom := t.atBottom()
	t.vp.Width = width
	t.vp.Height = height
	t.vp.SetContent(t.wrapped())

	if wasAtBottom {
		t.vp.GotoBottom()
		return
	}
	maxOffset := t.vp.TotalLineCount() - t.vp.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if t.vp.YOffset > maxOffset {
		t.vp.SetYOffset(maxOffset)
	}
}

func (t *transcript) atBottom() bool {
	return t.vp.YOffset+t.vp.Height >= t.vp.TotalLineCount()
}

func (t *transcript) wrapped() string {
	if t.vp.Width <= 0 {
		return strings.Join(t.lines, "\n")
	}
	out := make([]string, 0, len(t.lines))
	for _, line := range t.lines {
		out = append(out, wrap.String(line, t.vp.Width))
	}
	return strings.Join(out, "\n")
}
