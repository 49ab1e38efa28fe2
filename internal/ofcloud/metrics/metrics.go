// Package metrics 调度器的 prometheus 指标
//
// 所有方法对 nil *Metrics 安全，测试里可以不创建。
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ofcloud"

// Admission 结果
const (
	AdmissionAdmitted = "admitted"
	AdmissionDenied   = "denied"
	AdmissionError    = "error"
)

type Metrics struct {
	Transitions       *prometheus.CounterVec
	Retries           prometheus.Counter
	Admissions        *prometheus.CounterVec
	PassDuration      *prometheus.HistogramVec
	PassSkipped       *prometheus.CounterVec
	InstancesByStatus *prometheus.GaugeVec
}

// New 创建并注册指标
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_transitions_total",
			Help:      "Number of instance status transitions by target status.",
		}, []string{"to"}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_retries_total",
			Help:      "Number of failed deployment attempts sent back to PENDING.",
		}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_checks_total",
			Help:      "Number of admission checks by provider and result.",
		}, []string{"provider", "result"}),
		PassDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_pass_duration_seconds",
			Help:      "Duration of scheduler passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"pass"}),
		PassSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_pass_skipped_total",
			Help:      "Number of ticks where a pass was skipped because the previous run was still active.",
		}, []string{"pass"}),
		InstancesByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Number of instances by status.",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		m.Transitions, m.Retries, m.Admissions, m.PassDuration, m.PassSkipped, m.InstancesByStatus,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveTransition(to string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Transitions.WithLabelValues(to).Add(float64(n))
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) ObserveAdmission(providerID, result string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(providerID, result).Inc()
}

func (m *Metrics) ObservePass(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.PassDuration.WithLabelValues(pass).Observe(d.Seconds())
}

func (m *Metrics) ObserveSkip(pass string) {
	if m == nil {
		return
	}
	m.PassSkipped.WithLabelValues(pass).Inc()
}

// SetInstanceCounts 未出现的状态置 0
func (m *Metrics) SetInstanceCounts(statuses []string, counts map[string]int64) {
	if m == nil {
		return
	}
	for _, s := range statuses {
		m.InstancesByStatus.WithLabelValues(s).Set(float64(counts[s]))
	}
}
