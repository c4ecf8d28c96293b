// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector 工作流指标收集器
type Collector struct {
	// 运行级指标
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram

	// 工作器指标
	dispatchesTotal   *prometheus.CounterVec
	plannerModesTotal *prometheus.CounterVec
	plannerFallbacks  prometheus.Counter

	// 轮换指标
	rotationAdvances  *prometheus.CounterVec
	rotationExhausted *prometheus.CounterVec
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of workflow runs by final status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Workflow run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		dispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_dispatches_total",
				Help:      "Total number of worker dispatches by worker",
			},
			[]string{"worker"},
		),
		plannerModesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "planner_modes_total",
				Help:      "Total number of planning calls by mode",
			},
			[]string{"mode"},
		),
		plannerFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "planner_fallbacks_total",
				Help:      "Total number of planner fallbacks to the prior plan",
			},
		),
		rotationAdvances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotation_advances_total",
				Help:      "Total number of model rotation advances by component",
			},
			[]string{"component"},
		),
		rotationExhausted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotation_exhausted_total",
				Help:      "Total number of full rotation exhaustions by component",
			},
			[]string{"component"},
		),
	}
}

// RecordRun 记录一次运行的最终状态与耗时。
func (c *Collector) RecordRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordDispatch 记录一次工作器分派。
func (c *Collector) RecordDispatch(worker string) {
	if c == nil {
		return
	}
	c.dispatchesTotal.WithLabelValues(worker).Inc()
}

// RecordPlannerMode 记录一次规划调用的模式。
func (c *Collector) RecordPlannerMode(mode string) {
	if c == nil {
		return
	}
	c.plannerModesTotal.WithLabelValues(mode).Inc()
}

// RecordPlannerFallback 记录一次规划降级。
func (c *Collector) RecordPlannerFallback() {
	if c == nil {
		return
	}
	c.plannerFallbacks.Inc()
}

// RecordRotationAdvance 记录一次轮换前进。
func (c *Collector) RecordRotationAdvance(component string) {
	if c == nil {
		return
	}
	c.rotationAdvances.WithLabelValues(component).Inc()
}

// RecordRotationExhausted 记录一次轮换耗尽。
func (c *Collector) RecordRotationExhausted(component string) {
	if c == nil {
		return
	}
	c.rotationExhausted.WithLabelValues(component).Inc()
}
