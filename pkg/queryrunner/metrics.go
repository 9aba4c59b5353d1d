// SPDX-License-Identifier: AGPL-3.0-only

package queryrunner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is shared by every Runner built from the same dependencies, so
// that all panels report into one set of series.
type Metrics struct {
	queriesStarted    prometheus.Counter
	resultsPublished  prometheus.Counter
	resultsSuppressed prometheus.Counter
	queriesCancelled  prometheus.Counter
	buildFailures     prometheus.Counter
	activeRunners     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		queriesStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "panelquery_queries_started_total",
			Help: "Total number of query executions started.",
		}),
		resultsPublished: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "panelquery_results_published_total",
			Help: "Total number of results published to panel subscribers.",
		}),
		resultsSuppressed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "panelquery_results_suppressed_total",
			Help: "Total number of results dropped because they matched the previously published result.",
		}),
		queriesCancelled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "panelquery_queries_cancelled_total",
			Help: "Total number of explicit query cancellations.",
		}),
		buildFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "panelquery_request_build_failures_total",
			Help: "Total number of query runs that failed before dispatch, during datasource resolution or request assembly.",
		}),
		activeRunners: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "panelquery_active_runners",
			Help: "Number of live query runner instances.",
		}),
	}
}
