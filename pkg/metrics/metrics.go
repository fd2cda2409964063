// Package metrics exposes Prometheus collectors for workflow executions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trellis"

// Collector groups the engine's collectors on a private registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	dispatched  *prometheus.CounterVec
	executions  *prometheus.CounterVec
	steps       *prometheus.CounterVec
	stepLatency *prometheus.HistogramVec
	resumes     *prometheus.CounterVec
	cronFires   *prometheus.CounterVec
}

// NewCollector creates and registers all collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.dispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "workflows_matched_total",
			Help:      "Workflows selected for execution per trigger type",
		},
		[]string{"trigger_type"},
	)

	c.executions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Executions that reached a status, by status",
		},
		[]string{"status"},
	)

	c.steps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "steps_total",
			Help:      "Executed action steps by action type and status",
		},
		[]string{"action_type", "status"},
	)

	c.stepLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "step_duration_seconds",
			Help:      "Time taken to execute an action step",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"action_type"},
	)

	c.resumes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "resumes_total",
			Help:      "Delayed executions handed back to the engine, by outcome",
		},
		[]string{"outcome"},
	)

	c.cronFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cron_fires_total",
			Help:      "Cron schedules fired, by outcome",
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(
		c.dispatched,
		c.executions,
		c.steps,
		c.stepLatency,
		c.resumes,
		c.cronFires,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) WorkflowMatched(triggerType string) {
	if c == nil {
		return
	}

	c.dispatched.WithLabelValues(triggerType).Inc()
}

func (c *Collector) ExecutionStatus(status string) {
	if c == nil {
		return
	}

	c.executions.WithLabelValues(status).Inc()
}

func (c *Collector) StepExecuted(actionType, status string, duration time.Duration) {
	if c == nil {
		return
	}

	c.steps.WithLabelValues(actionType, status).Inc()
	c.stepLatency.WithLabelValues(actionType).Observe(duration.Seconds())
}

func (c *Collector) Resume(outcome string) {
	if c == nil {
		return
	}

	c.resumes.WithLabelValues(outcome).Inc()
}

func (c *Collector) CronFired(outcome string) {
	if c == nil {
		return
	}

	c.cronFires.WithLabelValues(outcome).Inc()
}
