package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 引擎侧可观测指标
// 熔断器状态迁移、死信深度、处置尝试/阻断、AI 命中与兜底率、token 消耗
var (
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions.",
	}, []string{"breaker", "from", "to"})

	DLQCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "dlq_captured_total",
		Help:      "Processing failures captured into the dead letter queue.",
	})

	DLQReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "dlq_replayed_total",
		Help:      "DLQ replay outcomes.",
	}, []string{"outcome"})

	DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "elx",
		Name:      "dlq_depth",
		Help:      "Pending items in the dead letter queue.",
	})

	ResolutionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "resolution_attempts_total",
		Help:      "Automated resolution attempts by outcome.",
	}, []string{"outcome"})

	ResolutionBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "resolution_blocked_total",
		Help:      "Exceptions blocked from further automated resolution.",
	}, []string{"reason"})

	AdvisoryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "advisory_results_total",
		Help:      "Advisory results by source (AI vs fallback).",
	}, []string{"source"})

	TokensConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "ai_tokens_consumed_total",
		Help:      "AI tokens consumed per tenant.",
	}, []string{"tenant"})

	ExceptionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "elx",
		Name:      "exceptions_created_total",
		Help:      "Exception records created by reason code.",
	}, []string{"reason_code", "severity"})
)

// Serve 启动 /metrics HTTP 端点（addr 为空则不启动）
func Serve(addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
