package prometheus

import (
	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// MakeMetrics returns a request counter and a request latency histogram,
// both labelled by method.
func MakeMetrics(namespace, subsystem string) (metrics.Counter, metrics.Histogram) {
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_latency_microseconds",
		Help:      "Total duration of requests in microseconds.",
	}, []string{"method"})

	return counter, latency
}

// MakeRoundMetrics returns the closed round counter labelled by status, the
// submission counter labelled by verdict reason, and the committed model
// version gauge.
func MakeRoundMetrics(namespace, subsystem string) (rounds, updates metrics.Counter, version metrics.Gauge) {
	rounds = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rounds_total",
		Help:      "Number of closed rounds by final status.",
	}, []string{"status"})
	updates = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "updates_total",
		Help:      "Number of submitted updates by verdict.",
	}, []string{"reason"})
	version = kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "model_version",
		Help:      "Version of the last committed global model.",
	}, []string{})

	return rounds, updates, version
}
