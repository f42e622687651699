package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	movementCounter         *prometheus.CounterVec
	statementDuration       *prometheus.HistogramVec
	sequenceFallbackCounter *prometheus.CounterVec
	holidayLookupFailures   prometheus.Counter
	balanceDriftCounter     prometheus.Counter
	driftedAccountsGauge    prometheus.Gauge
	idempotencyCounter      *prometheus.CounterVec
	eventPublishCounter     *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		movementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_movements_total",
			Help: "Money movements by kind and outcome",
		}, []string{"kind", "result"})

		statementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_statement_duration_seconds",
			Help:    "Statement reconstruction latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"format"})

		sequenceFallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_sequence_fallback_total",
			Help: "Allocations served without the counter store",
		}, []string{"counter"})

		holidayLookupFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_holiday_lookup_failures_total",
			Help: "Holiday list fetches that failed open",
		})

		balanceDriftCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_balance_drift_total",
			Help: "Number of reconciliation runs that found drifted balances",
		})

		driftedAccountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_drifted_accounts",
			Help: "Accounts whose balance disagrees with their movement history",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		eventPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_event_publish_total",
			Help: "Movement event publish outcomes",
		}, []string{"result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			movementCounter,
			statementDuration,
			sequenceFallbackCounter,
			holidayLookupFailures,
			balanceDriftCounter,
			driftedAccountsGauge,
			idempotencyCounter,
			eventPublishCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementMovement(kind, result string) {
	if movementCounter == nil {
		return
	}
	movementCounter.WithLabelValues(kind, result).Inc()
}

func ObserveStatement(format string, duration time.Duration) {
	if statementDuration == nil {
		return
	}
	statementDuration.WithLabelValues(format).Observe(duration.Seconds())
}

func IncrementSequenceFallback(counter string) {
	if sequenceFallbackCounter == nil {
		return
	}
	sequenceFallbackCounter.WithLabelValues(counter).Inc()
}

func IncrementHolidayLookupFailure() {
	if holidayLookupFailures == nil {
		return
	}
	holidayLookupFailures.Inc()
}

// RecordBalanceDrift publishes the outcome of one reconciliation run.
func RecordBalanceDrift(drifted int) {
	if balanceDriftCounter == nil {
		return
	}
	driftedAccountsGauge.Set(float64(drifted))
	if drifted > 0 {
		balanceDriftCounter.Inc()
	}
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementEventPublish(result string) {
	if eventPublishCounter == nil {
		return
	}
	eventPublishCounter.WithLabelValues(result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
