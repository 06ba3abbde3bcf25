package debug

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-assistants/pkg/events"
)

func emitAll(r *Recorder, evs ...events.Event) {
	for _, e := range evs {
		r.Emit(context.Background(), e)
	}
}

func TestRecorder_CollectsRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "traces")
	r, err := NewRecorder(RecorderConfig{Dir: dir, IncludeToolArgs: true, IncludeToolResults: true, MaxResultSize: 10})
	require.NoError(t, err)

	emitAll(r,
		events.New(events.EventRunStarted, events.RunStartedData{AssistantID: "a1", ChatID: "c1", Input: "hi"}),
		events.New(events.EventThread, events.ThreadData{ThreadID: "thread_1"}),
		events.New(events.EventRunStatus, events.RunStatusData{RunID: "run_1", Status: "requires_action", Poll: 1}),
		events.New(events.EventToolCall, events.ToolCallData{ToolName: "calc", Args: `{"x":1}`}),
		events.New(events.EventToolResult, events.ToolResultData{ToolName: "calc", Result: "0123456789ABCDEF", Duration: 20 * time.Millisecond}),
		events.New(events.EventToolCall, events.ToolCallData{ToolName: "calc", Args: `{"x":2}`}),
		events.New(events.EventToolResult, events.ToolResultData{ToolName: "calc", Result: "2", Duration: 5 * time.Millisecond}),
		events.New(events.EventRunStatus, events.RunStatusData{RunID: "run_1", Status: "completed", Poll: 1}),
		events.New(events.EventMessage, events.MessageData{Content: "short"}),
		events.New(events.EventDone, events.MessageData{Content: "ignored by recorder"}),
	)

	path, err := r.Finalize(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "trace_"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var trace RunTrace
	require.NoError(t, json.Unmarshal(raw, &trace))

	assert.Equal(t, "a1", trace.AssistantID)
	assert.Equal(t, "c1", trace.ChatID)
	assert.Equal(t, "thread_1", trace.ThreadID)
	assert.False(t, trace.ThreadCreated)
	assert.Equal(t, "run_1", trace.RunID)
	assert.Equal(t, int64(1500), trace.Duration)
	assert.Equal(t, "short", trace.FinalResult)

	require.Len(t, trace.ToolsExecuted, 2)
	assert.Equal(t, `{"x":1}`, trace.ToolsExecuted[0].Args)
	assert.Equal(t, "0123456789... (truncated)", trace.ToolsExecuted[0].Result)
	assert.True(t, trace.ToolsExecuted[0].ResultTruncated)
	assert.Equal(t, `{"x":2}`, trace.ToolsExecuted[1].Args)

	assert.Equal(t, Summary{
		TotalPolls:         2,
		TotalToolsExecuted: 2,
		TotalToolDuration:  25,
		LastStatus:         "completed",
		VisitedTools:       []string{"calc"},
	}, trace.Summary)
}

func TestRecorder_OmitsToolDataWhenDisabled(t *testing.T) {
	r, err := NewRecorder(RecorderConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	emitAll(r,
		events.New(events.EventToolCall, events.ToolCallData{ToolName: "t", Args: "{}"}),
		events.New(events.EventToolResult, events.ToolResultData{ToolName: "t", Result: "secret"}),
	)
	trace := r.Trace()
	require.Len(t, trace.ToolsExecuted, 1)
	assert.Empty(t, trace.ToolsExecuted[0].Args)
	assert.Empty(t, trace.ToolsExecuted[0].Result)
}

func TestRecorder_Error(t *testing.T) {
	r, err := NewRecorder(RecorderConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	r.Emit(context.Background(), events.New(events.EventError, events.ErrorData{Err: errors.New("run failed")}))
	assert.Equal(t, "run failed", r.Trace().Error)
}

func TestRecorder_UniqueIDs(t *testing.T) {
	a, err := NewRecorder(RecorderConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	b, err := NewRecorder(RecorderConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.NotEqual(t, a.Trace().TraceID, b.Trace().TraceID)
}

func TestFanout(t *testing.T) {
	r1, _ := NewRecorder(RecorderConfig{})
	r2, _ := NewRecorder(RecorderConfig{})
	fan := events.Fanout{r1, nil, r2}

	fan.Emit(context.Background(), events.New(events.EventThread, events.ThreadData{ThreadID: "t"}))
	assert.Equal(t, "t", r1.Trace().ThreadID)
	assert.Equal(t, "t", r2.Trace().ThreadID)
}
