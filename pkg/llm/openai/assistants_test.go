package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-assistants/pkg/config"
)

// newTestClient поднимает httptest сервер с заданными маршрутами.
func newTestClient(t *testing.T, mux *http.ServeMux) *AssistantsClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewAssistantsClient("sk-test", config.OpenAIConfig{
		BaseURL:    srv.URL + "/v1",
		RateLimit:  6000,
		BurstLimit: 100,
		Timeout:    5 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestAssistantsClient_RunLifecycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))
		writeJSON(w, map[string]any{"id": "thread_1", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		var req openai.MessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user", req.Role)
		assert.Equal(t, "hello", req.Content)
		writeJSON(w, map[string]any{"id": "msg_1", "role": "user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		var req openai.RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "asst_1", req.AssistantID)
		writeJSON(w, map[string]any{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "run_1", "status": "completed"})
	})
	mux.HandleFunc("GET /v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"id": "msg_2", "role": "assistant", "content": []map[string]any{
				{"type": "text", "text": map[string]any{"value": "hi", "annotations": []any{}}},
			}},
		}})
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	thread, err := c.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_1", thread.ID)

	_, err = c.CreateMessage(ctx, thread.ID, "hello")
	require.NoError(t, err)

	run, err := c.CreateRun(ctx, thread.ID, "asst_1")
	require.NoError(t, err)
	assert.Equal(t, openai.RunStatusQueued, run.Status)

	run, err = c.RetrieveRun(ctx, thread.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, openai.RunStatusCompleted, run.Status)

	msgs, err := c.ListMessages(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content[0].Text.Value)
}

func TestAssistantsClient_DownloadFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/files/file-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "file-1", "filename": "chart", "bytes": 3})
	})
	mux.HandleFunc("GET /v1/files/file-1/content", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PNG"))
	})

	c := newTestClient(t, mux)

	meta, err := c.GetFile(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, "chart", meta.FileName)

	rc, err := c.DownloadFile(context.Background(), "file-1")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "PNG", string(body))
}

func TestAssistantsClient_ErrorsKeepAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/threads/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"No thread found with id 'gone'.","type":"invalid_request_error"}}`))
	})

	c := newTestClient(t, mux)
	_, err := c.RetrieveThread(context.Background(), "gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieve thread gone")

	var apiErr *openai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatusCode)
}

func TestAssistantsClient_LimiterHonoursContext(t *testing.T) {
	c := NewAssistantsClient("sk-test", config.OpenAIConfig{RateLimit: 1, BurstLimit: 1})
	// первый токен съедаем, второй ждать минуту
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.RetrieveAssistant(ctx, "asst_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestNewLimiter(t *testing.T) {
	unlimited := newLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}

	l := newLimiter(60, 0)
	assert.Equal(t, 1, l.Burst())
	assert.InDelta(t, 1.0, float64(l.Limit()), 0.0001)
}

func TestFactory_SharesClientPerKey(t *testing.T) {
	f := NewFactory(config.OpenAIConfig{RateLimit: 60, BurstLimit: 1})
	a := f.ForKey("sk-a")
	assert.Same(t, a, f.ForKey("sk-a"))
	assert.NotSame(t, a, f.ForKey("sk-b"))
}
