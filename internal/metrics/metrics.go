package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AttemptsStarted counts sessions created by Begin.
	AttemptsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempts_started_total",
			Help: "Total number of exam attempts started",
		},
	)

	// AttemptsCompleted counts completed sessions by reason: SUBMITTED, TIME_EXPIRED, ABANDONED.
	AttemptsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempts_completed_total",
			Help: "Total number of exam attempts completed",
		},
		[]string{"reason", "passed"},
	)

	// AttemptsLive is the number of sessions held in memory.
	AttemptsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_attempts_live_current",
			Help: "Current number of attempts held in memory",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_attempt_persist_failures_total",
			Help: "Total number of failed attempt persistence calls",
		},
	)

	// DefinitionLoads counts definition lookups by source: cache, store, rejected.
	DefinitionLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_definition_loads_total",
			Help: "Total number of exam definition loads",
		},
		[]string{"source"},
	)

	CertificatesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_certificates_issued_total",
			Help: "Total number of certificates written by the worker",
		},
	)

	CertificateFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exam_certificate_flush_duration_seconds",
			Help:    "Time spent writing a certificate batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Handler serves the Prometheus exposition format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
