package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks engine activity for the /metrics endpoint.
type Metrics struct {
	SnapCommits      prometheus.Counter
	TabJoins         prometheus.Counter
	InvalidTargets   prometheus.Counter
	GroupSplits      prometheus.Counter
	ActiveSnapGroups prometheus.Gauge
	ActiveTabGroups  prometheus.Gauge
}

// NewMetrics registers the engine's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SnapCommits: factory.NewCounter(prometheus.CounterOpts{
			Name: "layouts_snap_commits_total",
			Help: "Snap targets committed on drag release.",
		}),
		TabJoins: factory.NewCounter(prometheus.CounterOpts{
			Name: "layouts_tab_joins_total",
			Help: "Windows added to tab groups.",
		}),
		InvalidTargets: factory.NewCounter(prometheus.CounterOpts{
			Name: "layouts_invalid_targets_total",
			Help: "Resolved snap targets rejected by validation.",
		}),
		GroupSplits: factory.NewCounter(prometheus.CounterOpts{
			Name: "layouts_group_splits_total",
			Help: "Snap groups split after losing connectivity.",
		}),
		ActiveSnapGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "layouts_active_snap_groups",
			Help: "Registered snap groups, singletons included.",
		}),
		ActiveTabGroups: factory.NewGauge(prometheus.GaugeOpts{
			Name: "layouts_active_tab_groups",
			Help: "Registered tab groups.",
		}),
	}
}
