// Package server - HTTP поверхность хоста: список ассистентов, run, очистка
// сессии, health и prometheus метрики.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ilkoid/poncho-assistants/pkg/app"
	"github.com/ilkoid/poncho-assistants/pkg/assistant"
	"github.com/ilkoid/poncho-assistants/pkg/config"
	"github.com/ilkoid/poncho-assistants/pkg/utils"
)

// Host - операции хоста, которые выставляет сервер. Реализуется *app.Components.
type Host interface {
	Run(ctx context.Context, req app.RunRequest) (*app.RunResponse, error)
	ClearSession(ctx context.Context, assistantID, sessionID, chatID string) bool
	ListAssistants(ctx context.Context) ([]assistant.AssistantOption, error)
}

// Router HTTP роутер.
type Router struct {
	engine   *gin.Engine
	cfg      config.ServerConfig
	host     Host
	gatherer prometheus.Gatherer
}

// New создаёт роутер. gatherer == nil - эндпоинт метрик не регистрируется.
func New(cfg config.ServerConfig, host Host, gatherer prometheus.Gatherer) *Router {
	if cfg.Mode == gin.ReleaseMode || cfg.Mode == gin.DebugMode || cfg.Mode == gin.TestMode {
		gin.SetMode(cfg.Mode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		host:     host,
		gatherer: gatherer,
	}
	r.engine.Use(gin.Recovery(), requestLogger())
	r.setupRoutes()
	return r
}

// Engine возвращает gin.Engine (для http.Server и тестов).
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if r.gatherer != nil && r.cfg.MetricsPath != "" {
		r.engine.GET(r.cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.engine.Group("/v1")
	{
		v1.GET("/assistants", r.listAssistants)
		v1.POST("/assistants/:id/runs", r.createRun)
		v1.DELETE("/sessions/:sessionId", r.clearSession)
	}
}

// requestLogger пишет каждый запрос в лог приложения.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		utils.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type runBody struct {
	ChatID string   `json:"chatId"`
	Input  string   `json:"input" binding:"required"`
	Tools  []string `json:"tools"`
}

func (r *Router) createRun(c *gin.Context) {
	var body runBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := r.host.Run(c.Request.Context(), app.RunRequest{
		AssistantID: c.Param("id"),
		ChatID:      body.ChatID,
		Input:       body.Input,
		Tools:       body.Tools,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) listAssistants(c *gin.Context) {
	list, err := r.host.ListAssistants(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// clearSession всегда отвечает 200: очистка best-effort, результат в "cleared".
func (r *Router) clearSession(c *gin.Context) {
	cleared := r.host.ClearSession(c.Request.Context(),
		c.Query("assistantId"),
		c.Param("sessionId"),
		c.Query("chatId"))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

// statusFor переводит ошибку узла в HTTP статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrAssistantNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrCredentialMissing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assistant.ErrRunFailed), errors.Is(err, assistant.ErrNoToolOutputs):
		return http.StatusBadGateway
	case errors.Is(err, assistant.ErrPollTimeout), errors.Is(err, assistant.ErrRunStalled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
