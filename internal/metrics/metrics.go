// Package metrics exports admission outcomes as Prometheus metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/msggate/internal/admission"
	"github.com/roach88/msggate/internal/wire"
)

const (
	resultAdmitted = "admitted"
	resultRejected = "rejected"
)

// Collector implements admission.Observer on its own registry.
type Collector struct {
	registry *prometheus.Registry

	admissionsTotal     *prometheus.CounterVec
	admissionLatency    *prometheus.HistogramVec
	rejectionsByStage   *prometheus.CounterVec
	admittedByChain     *prometheus.CounterVec
	initializationTotal *prometheus.CounterVec
}

var _ admission.Observer = (*Collector)(nil)

// NewCollector creates a collector. Namespace defaults to "msggate".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "msggate"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "attempts_total",
			Help:      "Admission attempts by result, rejection class and code",
		},
		[]string{"result", "class", "code"},
	)

	c.admissionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "duration_seconds",
			Help:      "Time from receipt to commit or rejection",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 100us to ~1.6s
		},
		[]string{"result"},
	)

	c.rejectionsByStage = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "rejections_by_stage_total",
			Help:      "Rejections by the last gate the attempt passed",
		},
		[]string{"stage"},
	)

	c.admittedByChain = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "admitted_total",
			Help:      "Admitted messages per source chain",
		},
		[]string{"source_chain_id"},
	)

	c.initializationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "counter",
			Name:      "initializations_total",
			Help:      "Chain counter initialization requests by result and code",
		},
		[]string{"result", "code"},
	)

	c.registry.MustRegister(
		c.admissionsTotal,
		c.admissionLatency,
		c.rejectionsByStage,
		c.admittedByChain,
		c.initializationTotal,
	)

	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// AdmissionAttempt implements admission.Observer.
func (c *Collector) AdmissionAttempt(chain wire.ChainID, stage admission.Stage, code admission.Code, elapsed time.Duration) {
	if code == "" {
		c.admissionsTotal.WithLabelValues(resultAdmitted, "", "").Inc()
		c.admissionLatency.WithLabelValues(resultAdmitted).Observe(elapsed.Seconds())
		c.admittedByChain.WithLabelValues(strconv.FormatUint(uint64(chain), 10)).Inc()
		return
	}
	c.admissionsTotal.WithLabelValues(resultRejected, string(code.Class()), string(code)).Inc()
	c.admissionLatency.WithLabelValues(resultRejected).Observe(elapsed.Seconds())
	c.rejectionsByStage.WithLabelValues(stage.String()).Inc()
}

// CounterInitialization implements admission.Observer.
func (c *Collector) CounterInitialization(_ wire.ChainID, code admission.Code, _ time.Duration) {
	if code == "" {
		c.initializationTotal.WithLabelValues(resultAdmitted, "").Inc()
		return
	}
	c.initializationTotal.WithLabelValues(resultRejected, string(code)).Inc()
}

// WriteTextfile writes the current values in the text exposition format,
// for pickup by a node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
