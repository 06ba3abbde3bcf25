package assistant

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - счётчики узла. Все методы nil-safe: узел без метрик просто не пишет их.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	PollsTotal     prometheus.Counter
	ToolCallsTotal *prometheus.CounterVec
	ImagesTotal    *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg. Для /metrics хоста передаётся
// prometheus.DefaultRegisterer, тесты используют свой prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poncho_assistant_runs_total",
			Help: "Total number of assistant runs by result",
		}, []string{"result"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "poncho_assistant_run_duration_seconds",
			Help:    "Assistant run duration from message append to rendered answer",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		PollsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "poncho_assistant_run_polls_total",
			Help: "Total number of run status polls",
		}),
		ToolCallsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poncho_assistant_tool_calls_total",
			Help: "Total number of tool calls requested by runs",
		}, []string{"tool", "result"}),
		ImagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poncho_assistant_images_total",
			Help: "Total number of image content parts rendered",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordRun(result string, d time.Duration) {
	if m == nil || m.RunsTotal == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	if m.RunDuration != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordPoll() {
	if m == nil || m.PollsTotal == nil {
		return
	}
	m.PollsTotal.Inc()
}

func (m *Metrics) RecordToolCall(tool, result string) {
	if m == nil || m.ToolCallsTotal == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, result).Inc()
}

func (m *Metrics) RecordImage(result string) {
	if m == nil || m.ImagesTotal == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(result).Inc()
}
