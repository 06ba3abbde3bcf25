package assistant

import (
	"context"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-assistants/pkg/config"
)

// newTestPoller подменяет sleep, чтобы проверять паузы без реального ожидания.
func newTestPoller(api API, policy PollPolicy) (*Poller, *[]time.Duration) {
	var waits []time.Duration
	p := NewPoller(api, policy, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return p, &waits
}

func TestPoll_BackoffIsCapped(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{
		{Status: openai.RunStatusQueued},
		{Status: openai.RunStatusInProgress},
		{Status: openai.RunStatusInProgress},
		{Status: openai.RunStatusCancelling},
		{Status: openai.RunStatusCompleted},
	}
	p, waits := newTestPoller(api, PollPolicy{
		Interval:    100 * time.Millisecond,
		MaxInterval: 300 * time.Millisecond,
		Backoff:     2,
		MaxPolls:    10,
		StallLimit:  3,
	})

	out, err := p.Poll(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	_, ok := out.(Completed)
	assert.True(t, ok, "got %T", out)

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, *waits)
}

func TestPoll_Outcomes(t *testing.T) {
	tests := []struct {
		name string
		run  openai.Run
		want string
	}{
		{"completed", openai.Run{Status: openai.RunStatusCompleted}, "assistant.Completed"},
		{"needs action", requiresAction(toolCall("c1", "t", "{}")), "assistant.NeedsAction"},
		{"failed", openai.Run{Status: openai.RunStatusFailed}, "assistant.Failed"},
		{"cancelled", openai.Run{Status: openai.RunStatusCancelled}, "assistant.Failed"},
		{"expired", openai.Run{Status: openai.RunStatusExpired}, "assistant.Failed"},
		{"incomplete", openai.Run{Status: openai.RunStatusIncomplete}, "assistant.Failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.runs = []openai.Run{tt.run}
			p, _ := newTestPoller(api, fastPolicy())

			out, err := p.Poll(context.Background(), "thread_1", "run_1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, typeName(out))
		})
	}
}

func typeName(o Outcome) string {
	switch o.(type) {
	case Completed:
		return "assistant.Completed"
	case NeedsAction:
		return "assistant.NeedsAction"
	case Failed:
		return "assistant.Failed"
	}
	return "unknown"
}

func TestPoll_NeedsActionCarriesCalls(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{requiresAction(toolCall("c1", "a", "{}"), toolCall("c2", "b", "{}"))}
	p, _ := newTestPoller(api, fastPolicy())

	out, err := p.Poll(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	na, ok := out.(NeedsAction)
	require.True(t, ok)
	require.Len(t, na.Calls, 2)
	assert.Equal(t, "c1", na.Calls[0].ID)
	assert.Equal(t, "c2", na.Calls[1].ID)
}

func TestPoll_StallWithoutToolCalls(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusRequiresAction}}
	p, _ := newTestPoller(api, fastPolicy())

	_, err := p.Poll(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrRunStalled)
	assert.Contains(t, err.Error(), "run_1")
	assert.Equal(t, 3, api.polls)
}

func TestPoll_StallCounterResetsOnProgress(t *testing.T) {
	stall := openai.Run{Status: openai.RunStatusRequiresAction}
	api := newFakeAPI()
	api.runs = []openai.Run{
		stall, stall,
		{Status: openai.RunStatusInProgress},
		stall, stall,
		{Status: openai.RunStatusCompleted},
	}
	p, _ := newTestPoller(api, fastPolicy())

	out, err := p.Poll(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.IsType(t, Completed{}, out)
}

func TestPoll_Timeout(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusInProgress}}
	policy := fastPolicy()
	policy.MaxPolls = 4
	p, waits := newTestPoller(api, policy)

	_, err := p.Poll(context.Background(), "thread_1", "run_1")
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, 4, api.polls)
	assert.Len(t, *waits, 4)
}

func TestPoll_ContextCancelled(t *testing.T) {
	api := newFakeAPI()
	api.runs = []openai.Run{{Status: openai.RunStatusInProgress}}
	p, _ := newTestPoller(api, fastPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Poll(ctx, "thread_1", "run_1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, api.polls)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.PollConfig{})
	assert.Equal(t, 500*time.Millisecond, p.Interval)
	assert.Equal(t, 500*time.Millisecond, p.MaxInterval)
	assert.Equal(t, 1.0, p.Backoff)
	assert.Equal(t, 600, p.MaxPolls)
	assert.Equal(t, 5, p.StallLimit)

	p = PolicyFromConfig(config.PollConfig{Interval: time.Second, MaxInterval: 5 * time.Second, Backoff: 1.5, MaxPolls: 10, StallLimit: 2})
	assert.Equal(t, 1500*time.Millisecond, p.next(time.Second))
	assert.Equal(t, 5*time.Second, p.next(4*time.Second))
}
