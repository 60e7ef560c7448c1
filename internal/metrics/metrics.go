// Package metrics exposes Prometheus instrumentation for the monitor and
// settlement pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service registers. One instance is shared
// across subsystems; all collectors are safe for concurrent use.
type Metrics struct {
	ScanCycles        prometheus.Counter
	ScanDuration      prometheus.Histogram
	MonitoredGauge    prometheus.Gauge
	TriggersTotal     *prometheus.CounterVec
	CloseOutcomes     *prometheus.CounterVec
	SettlementsTotal  *prometheus.CounterVec
	PriceFetchMisses  prometheus.Counter
	DeadlockRetries   prometheus.Counter
	ArchivedRowsTotal *prometheus.CounterVec
}

// New registers all collectors on the given registerer and returns the set.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ScanCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_monitor_scan_cycles_total",
			Help: "Completed monitor scan cycles.",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradecore_monitor_scan_duration_seconds",
			Help:    "Duration of one full scan cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		MonitoredGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tradecore_monitor_positions",
			Help: "Positions carrying triggers in the most recent cycle.",
		}),
		TriggersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_monitor_triggers_total",
			Help: "Trigger detections by type.",
		}, []string{"trigger"}),
		CloseOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_monitor_close_outcomes_total",
			Help: "Close dispatch outcomes by target and result.",
		}, []string{"target", "result"}),
		SettlementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_settlements_total",
			Help: "Fill settlements by result.",
		}, []string{"result"}),
		PriceFetchMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_price_fetch_misses_total",
			Help: "Monitored positions skipped because no fresh price was available.",
		}),
		DeadlockRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradecore_db_deadlock_retries_total",
			Help: "Transactions retried after a deadlock or serialization failure.",
		}),
		ArchivedRowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradecore_archived_rows_total",
			Help: "Journal rows archived to object storage by table.",
		}, []string{"table"}),
	}
}

// Handler returns the /metrics HTTP handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
