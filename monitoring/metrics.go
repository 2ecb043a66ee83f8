// Package monitoring 提供预测指标与实时推送
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spacepredict"

// Metrics 预测指标
type Metrics struct {
	predictions *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	inference   prometheus.Histogram
	cacheHits   prometheus.Counter
	failures    *prometheus.CounterVec
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encoding_fallbacks_total",
			Help:      "Categorical values encoded with the fallback code, by field.",
		}, []string{"field"}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent in the model for one record.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_hits_total",
			Help:      "Predictions answered from the result cache.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Prediction requests that failed, by stage.",
		}, []string{"stage"}),
	}
	if reg != nil {
		reg.MustRegister(m.predictions, m.fallbacks, m.inference, m.cacheHits, m.failures)
	}
	return m
}

// ObservePrediction 记录一次预测
func (m *Metrics) ObservePrediction(transported bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "not_transported"
	if transported {
		outcome = "transported"
	}
	m.predictions.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.inference.Observe(elapsed.Seconds())
	}
}

// ObserveFallbacks 记录回退编码的字段
func (m *Metrics) ObserveFallbacks(fields []string) {
	if m == nil {
		return
	}
	for _, field := range fields {
		m.fallbacks.WithLabelValues(field).Inc()
	}
}

func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}
