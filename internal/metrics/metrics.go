package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdesk",
			Name:      "schedule_submissions_total",
			Help:      "Count of confirmed schedule batch submissions by status.",
		},
		[]string{"status"},
	)

	submittedSlots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "examdesk",
			Name:      "schedule_slots_submitted_total",
			Help:      "Count of exam slots created through batch submissions.",
		},
	)

	deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdesk",
			Name:      "schedule_deletions_total",
			Help:      "Count of exam slot deletions by status.",
		},
		[]string{"status"},
	)

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdesk",
			Name:      "remote_calls_total",
			Help:      "Count of calls to the school data service by operation and status.",
		},
		[]string{"op", "status"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "examdesk",
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of calls to the school data service.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdesk",
			Name:      "http_requests_total",
			Help:      "Count of console HTTP requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(submissions, submittedSlots, deletions, remoteCalls, remoteLatency, httpRequests)
	})
}

func IncSubmission(status string, slots int) {
	submissions.WithLabelValues(status).Inc()
	if slots > 0 {
		submittedSlots.Add(float64(slots))
	}
}

func IncDeletion(status string) {
	deletions.WithLabelValues(status).Inc()
}

func ObserveRemoteCall(op, status string, seconds float64) {
	remoteCalls.WithLabelValues(op, status).Inc()
	remoteLatency.WithLabelValues(op).Observe(seconds)
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
