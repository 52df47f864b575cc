package oracle

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	oracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_oracle_requests_total",
			Help: "Total number of requests to the AI backend.",
		},
		[]string{"backend", "operation", "status"},
	)
	oracleRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_oracle_request_duration_seconds",
			Help:    "Histogram of AI request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
	oraclePromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_oracle_prompt_tokens",
			Help:    "Histogram of prompt token counts (reported usage or tiktoken estimate).",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"backend", "operation"},
	)
	oracleCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_oracle_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"backend", "operation"},
	)
)

const (
	opSelect = "select"
	opGraph  = "graph"
)

func observeRequest(backend, operation, status string, seconds float64) {
	oracleRequestsTotal.WithLabelValues(backend, operation, status).Inc()
	if status == "success" {
		oracleRequestDuration.WithLabelValues(backend, operation).Observe(seconds)
	}
}

func observeTokens(backend, operation string, prompt, completion int) {
	if prompt > 0 {
		oraclePromptTokens.WithLabelValues(backend, operation).Observe(float64(prompt))
	}
	if completion > 0 {
		oracleCompletionTokens.WithLabelValues(backend, operation).Observe(float64(completion))
	}
}

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}
)

// estimateTokens - оценка токенов через tiktoken, когда бэкенд не вернул usage.
// Для моделей, неизвестных tiktoken, используется cl100k_base. 0 - оценить не удалось.
func estimateTokens(model string, texts ...string) int {
	encodersMu.Lock()
	tke, ok := encoders[model]
	if !ok {
		var err error
		tke, err = tiktoken.EncodingForModel(model)
		if err != nil {
			tke, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			tke = nil
		}
		encoders[model] = tke
	}
	encodersMu.Unlock()

	if tke == nil {
		return 0
	}
	total := 0
	for _, t := range texts {
		total += len(tke.Encode(t, nil, nil))
	}
	return total
}
