package assistant

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ilkoid/poncho-assistants/pkg/config"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// Outcome - результат одного цикла ожидания run.
//
// Закрытый набор вариантов: Completed, NeedsAction, Failed.
type Outcome interface {
	outcome()
}

// Completed - run успешно завершён.
type Completed struct {
	Run openai.Run
}

// NeedsAction - run ждёт результатов локальных инструментов.
type NeedsAction struct {
	Run   openai.Run
	Calls []openai.ToolCall
}

// Failed - run в терминальном неуспешном статусе.
type Failed struct {
	Run    openai.Run
	Status openai.RunStatus
	Reason string
}

func (Completed) outcome()   {}
func (NeedsAction) outcome() {}
func (Failed) outcome()      {}

// PollPolicy - границы опроса run.
type PollPolicy struct {
	Interval    time.Duration // пауза перед первым опросом
	MaxInterval time.Duration // потолок паузы
	Backoff     float64       // множитель паузы после каждого нетерминального опроса
	MaxPolls    int           // опросов за один Poll
	StallLimit  int           // подряд requires_action без tool calls
}

// PolicyFromConfig собирает политику из секции openai.poll.
func PolicyFromConfig(cfg config.PollConfig) PollPolicy {
	return PollPolicy{
		Interval:    cfg.Interval,
		MaxInterval: cfg.MaxInterval,
		Backoff:     cfg.Backoff,
		MaxPolls:    cfg.MaxPolls,
		StallLimit:  cfg.StallLimit,
	}.normalize()
}

func (p PollPolicy) normalize() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = 500 * time.Millisecond
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.Backoff < 1 {
		p.Backoff = 1
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = 600
	}
	if p.StallLimit <= 0 {
		p.StallLimit = 5
	}
	return p
}

// next возвращает паузу перед следующим опросом.
func (p PollPolicy) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * p.Backoff)
	if d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// Poller опрашивает run до терминального состояния или до запроса инструментов.
type Poller struct {
	api     API
	policy  PollPolicy
	observe func(run openai.Run, poll int)
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPoller создаёт поллер. observe вызывается на каждый полученный снимок, может быть nil.
func NewPoller(api API, policy PollPolicy, observe func(run openai.Run, poll int)) *Poller {
	return &Poller{
		api:     api,
		policy:  policy.normalize(),
		observe: observe,
		sleep:   sleepCtx,
	}
}

// sleepCtx ждёт d или отмены ctx.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll ждёт, пока run не станет completed, requires_action с tool calls
// или терминально неуспешным.
//
// queued, in_progress, cancelling и неизвестные статусы опрашиваются дальше.
// requires_action без tool calls терпим StallLimit раз подряд, потом ErrRunStalled.
// После MaxPolls опросов возвращается ErrPollTimeout.
func (p *Poller) Poll(ctx context.Context, threadID, runID string) (Outcome, error) {
	interval := p.policy.Interval
	stalls := 0

	for poll := 1; poll <= p.policy.MaxPolls; poll++ {
		if err := p.sleep(ctx, interval); err != nil {
			return nil, fmt.Errorf("polling run %s in thread %s: %w", runID, threadID, err)
		}

		run, err := p.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return nil, err
		}
		if p.observe != nil {
			p.observe(run, poll)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return Completed{Run: run}, nil

		case openai.RunStatusRequiresAction:
			if calls := pendingCalls(run); len(calls) > 0 {
				return NeedsAction{Run: run, Calls: calls}, nil
			}
			stalls++
			utils.Warn("Run requires action without tool calls",
				"thread_id", threadID, "run_id", runID, "stalls", stalls)
			if stalls >= p.policy.StallLimit {
				return nil, fmt.Errorf("%w: run %s in thread %s after %d polls",
					ErrRunStalled, runID, threadID, stalls)
			}

		case openai.RunStatusFailed, openai.RunStatusCancelled,
			openai.RunStatusExpired, openai.RunStatusIncomplete:
			return Failed{Run: run, Status: run.Status, Reason: failureReason(run)}, nil

		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
			stalls = 0

		default:
			stalls = 0
			utils.Warn("Unknown run status, continue polling",
				"thread_id", threadID, "run_id", runID, "status", run.Status)
		}

		interval = p.policy.next(interval)
	}

	return nil, fmt.Errorf("%w: run %s in thread %s after %d polls",
		ErrPollTimeout, runID, threadID, p.policy.MaxPolls)
}

// pendingCalls достаёт tool calls из required_action.
func pendingCalls(run openai.Run) []openai.ToolCall {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}
	return run.RequiredAction.SubmitToolOutputs.ToolCalls
}

func failureReason(run openai.Run) string {
	if run.LastError == nil {
		return ""
	}
	if run.LastError.Code == "" {
		return run.LastError.Message
	}
	return fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
}
