package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	labTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comlab",
			Name:      "lab_transitions_total",
			Help:      "Count of committed lab transitions by action.",
		},
		[]string{"action"},
	)

	occupyRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comlab",
			Name:      "occupy_rejected_total",
			Help:      "Count of rejected occupy attempts by error kind.",
		},
		[]string{"kind"},
	)

	journalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comlab",
			Name:      "attendance_journal_failures_total",
			Help:      "Count of attendance writes that failed after a committed transition.",
		},
		[]string{"op"},
	)

	doubleOccupancyReleases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "comlab",
			Name:      "double_occupancy_releases_total",
			Help:      "Count of labs released by the double-occupancy audit.",
		},
	)

	reconciledSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "comlab",
			Name:      "reconciled_sessions",
			Help:      "Sessions produced by the last reconciliation pass.",
		},
		[]string{"state"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(labTransitions, occupyRejected, journalFailures, doubleOccupancyReleases, reconciledSessions)
	})
}

func IncTransition(action string) {
	labTransitions.WithLabelValues(action).Inc()
}

func IncOccupyRejected(kind string) {
	occupyRejected.WithLabelValues(kind).Inc()
}

func IncJournalFailure(op string) {
	journalFailures.WithLabelValues(op).Inc()
}

func IncDoubleOccupancyRelease() {
	doubleOccupancyReleases.Inc()
}

func SetReconciledSessions(completed, inProgress int) {
	reconciledSessions.WithLabelValues("completed").Set(float64(completed))
	reconciledSessions.WithLabelValues("in_progress").Set(float64(inProgress))
}
