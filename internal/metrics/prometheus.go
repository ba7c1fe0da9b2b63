package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusObserver struct {
	claimed      prometheus.Counter
	attempts     *prometheus.CounterVec
	finalized    *prometheus.CounterVec
	reconciled   prometheus.Counter
	passDuration prometheus.Histogram
}

var (
	claimedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_jobs_claimed_total",
		Help: "Total number of jobs claimed by publication passes",
	})
	attemptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_publication_attempts_total",
		Help: "Publication attempts by platform and outcome",
	}, []string{"platform", "outcome", "classification"})
	finalizedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_jobs_finalized_total",
		Help: "Jobs that reached a terminal status",
	}, []string{"status"})
	reconciledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_jobs_reconciled_total",
		Help: "Stale publishing jobs taken over by the reconciler",
	})
	passHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postflow_pass_duration_seconds",
		Help:    "Duration of publication passes",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func NewPrometheusObserver() PublishObserver {
	return &prometheusObserver{
		claimed:      claimedCounter,
		attempts:     attemptCounter,
		finalized:    finalizedCounter,
		reconciled:   reconciledCounter,
		passDuration: passHistogram,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) RecordClaims(n int) {
	p.claimed.Add(float64(n))
}

func (p *prometheusObserver) RecordAttempt(platform string, success bool, classification string) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	p.attempts.WithLabelValues(platform, outcome, classification).Inc()
}

func (p *prometheusObserver) RecordJobFinal(status string) {
	p.finalized.WithLabelValues(status).Inc()
}

func (p *prometheusObserver) RecordReconciled(n int) {
	p.reconciled.Add(float64(n))
}

func (p *prometheusObserver) ObservePassDuration(seconds float64) {
	p.passDuration.Observe(seconds)
}
