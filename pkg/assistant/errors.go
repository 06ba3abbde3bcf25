// Package assistant - узел, который исполняет сохранённого OpenAI ассистента:
// резолвит креды, сверяет инструменты, ведёт тред, опрашивает run, исполняет
// локальные инструменты и рендерит ответ.
//
// Все ошибки возвращаются вверх по стеку, никаких panic. Для errors.Is()
// экспортированы sentinel ошибки, RunFailedError дополнительно несёт статус.
package assistant

import (
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrAssistantNotFound - в базе нет ассистента с таким id (или его details битые).
var ErrAssistantNotFound = errors.New("assistant not found")

// ErrCredentialMissing - у ассистента нет кредов или в них нет API ключа.
var ErrCredentialMissing = errors.New("credential missing")

// ErrSessionNotFound - не удалось определить тред для очистки сессии.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoToolOutputs - run попросил инструменты, но ни один не нашёлся локально.
var ErrNoToolOutputs = errors.New("no tool outputs to submit")

// ErrRunFailed - run ушёл в терминальный неуспешный статус.
var ErrRunFailed = errors.New("run failed")

// ErrRunStalled - run висит в requires_action без tool calls.
var ErrRunStalled = errors.New("run stalled in requires_action without tool calls")

// ErrPollTimeout - исчерпан лимит опросов за один цикл ожидания.
var ErrPollTimeout = errors.New("run poll limit exceeded")

// RunFailedError описывает терминальный неуспешный статус run.
type RunFailedError struct {
	ThreadID string
	RunID    string
	Status   openai.RunStatus
	Reason   string
}

func (e *RunFailedError) Error() string {
	msg := fmt.Sprintf("run %s in thread %s finished with status %s", e.RunID, e.ThreadID, e.Status)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is позволяет errors.Is(err, ErrRunFailed).
func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}
