// Package xlat64metrics exposes Prometheus metrics for the translation
// pipeline and the instance registry.
package xlat64metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "xlat64"
)

// Label names.
const (
	labelVerdict   = "verdict"
	labelReason    = "reason"
	labelDirection = "direction"
	labelInstance  = "namespace"
	labelFramework = "framework"
)

// -------------------------------------------------------------------------
// Collector — Prometheus translation metrics
// -------------------------------------------------------------------------

// Collector holds all xlat64 Prometheus metrics.
//
// Metrics are designed for production translator monitoring:
//   - Translations counts every 6->4 call outcome by verdict.
//   - Drops counts every drop by reason code, satisfying the error-handling
//     design's "statistics counters are incremented at every drop" rule.
//   - ICMPErrors counts recursive inner-packet translations.
//   - Instances tracks the registry's published instance count.
type Collector struct {
	// Translations counts Translate6to4 outcomes, labeled by verdict kind
	// ("continue", "drop", "drop_icmp", "untranslatable").
	Translations *prometheus.CounterVec

	// Drops counts drop outcomes labeled by reason code.
	Drops *prometheus.CounterVec

	// ICMPErrors counts ICMP error translations labeled by direction
	// ("outer", "inner").
	ICMPErrors *prometheus.CounterVec

	// Instances tracks the number of currently published instances per
	// (namespace, framework).
	Instances *prometheus.GaugeVec

	// Replaces counts registry Replace operations.
	Replaces prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Translations,
		c.Drops,
		c.ICMPErrors,
		c.Instances,
		c.Replaces,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Total 6-to-4 translation calls, labeled by verdict.",
		}, []string{labelVerdict}),

		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Total dropped packets, labeled by reason code.",
		}, []string{labelReason}),

		ICMPErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icmp_errors_total",
			Help:      "Total ICMP error packets translated, labeled by direction.",
		}, []string{labelDirection}),

		Instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Number of currently published translator instances.",
		}, []string{labelInstance, labelFramework}),

		Replaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_replace_total",
			Help:      "Total instance registry Replace operations.",
		}),
	}
}

// -------------------------------------------------------------------------
// Translation Outcomes
// -------------------------------------------------------------------------

// IncTranslation increments the translation counter for the given verdict kind.
func (c *Collector) IncTranslation(verdict string) {
	c.Translations.WithLabelValues(verdict).Inc()
}

// IncDrop increments the drop counter for the given reason code.
func (c *Collector) IncDrop(reason string) {
	c.Drops.WithLabelValues(reason).Inc()
}

// IncICMPError increments the ICMP error counter for the given direction
// ("outer" or "inner").
func (c *Collector) IncICMPError(direction string) {
	c.ICMPErrors.WithLabelValues(direction).Inc()
}

// -------------------------------------------------------------------------
// Instance Lifecycle
// -------------------------------------------------------------------------

// RegisterInstance increments the published-instance gauge.
func (c *Collector) RegisterInstance(ns, framework string) {
	c.Instances.WithLabelValues(ns, framework).Inc()
}

// UnregisterInstance decrements the published-instance gauge.
func (c *Collector) UnregisterInstance(ns, framework string) {
	c.Instances.WithLabelValues(ns, framework).Dec()
}

// IncReplace increments the registry replace counter.
func (c *Collector) IncReplace() {
	c.Replaces.Inc()
}
