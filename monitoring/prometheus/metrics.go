// Copyright 2025 The Certledger Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package prometheus provides a Prometheus-based implementation of the
// MetricFactory abstraction.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"

	"github.com/certledger/certledger/monitoring"
)

// MetricFactory allows the creation of Prometheus-based metrics.
type MetricFactory struct {
	Prefix string
	// Registerer defaults to the process-wide default registerer.
	Registerer prometheus.Registerer
}

func (pmf MetricFactory) registerer() prometheus.Registerer {
	if pmf.Registerer != nil {
		return pmf.Registerer
	}
	return prometheus.DefaultRegisterer
}

// NewCounter creates a new Counter object backed by Prometheus.
func (pmf MetricFactory) NewCounter(name, help string, labelNames ...string) monitoring.Counter {
	if len(labelNames) == 0 {
		counter := prometheus.NewCounter(
			prometheus.CounterOpts{Name: pmf.Prefix + name, Help: help})
		if err := pmf.registerer().Register(counter); err != nil {
			klog.Exitf("failed to register %v: %v", name, err)
		}
		return &Counter{single: counter}
	}

	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: pmf.Prefix + name, Help: help},
		labelNames)
	if err := pmf.registerer().Register(vec); err != nil {
		klog.Exitf("failed to register %v: %v", name, err)
	}
	return &Counter{labelNames: labelNames, vec: vec}
}

// NewGauge creates a new Gauge object backed by Prometheus.
func (pmf MetricFactory) NewGauge(name, help string, labelNames ...string) monitoring.Gauge {
	if len(labelNames) == 0 {
		gauge := prometheus.NewGauge(
			prometheus.GaugeOpts{Name: pmf.Prefix + name, Help: help})
		if err := pmf.registerer().Register(gauge); err != nil {
			klog.Exitf("failed to register %v: %v", name, err)
		}
		return &Gauge{single: gauge}
	}

	vec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: pmf.Prefix + name, Help: help},
		labelNames)
	if err := pmf.registerer().Register(vec); err != nil {
		klog.Exitf("failed to register %v: %v", name, err)
	}
	return &Gauge{labelNames: labelNames, vec: vec}
}

// NewHistogram creates a new Histogram object backed by Prometheus.
func (pmf MetricFactory) NewHistogram(name, help string, labelNames ...string) monitoring.Histogram {
	if len(labelNames) == 0 {
		histogram := prometheus.NewHistogram(
			prometheus.HistogramOpts{Name: pmf.Prefix + name, Help: help})
		if err := pmf.registerer().Register(histogram); err != nil {
			klog.Exitf("failed to register %v: %v", name, err)
		}
		return &Histogram{single: histogram}
	}

	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: pmf.Prefix + name, Help: help},
		labelNames)
	if err := pmf.registerer().Register(vec); err != nil {
		klog.Exitf("failed to register %v: %v", name, err)
	}
	return &Histogram{labelNames: labelNames, vec: vec}
}

// Counter is a wrapper around a Prometheus Counter or CounterVec object.
type Counter struct {
	labelNames []string
	single     prometheus.Counter
	vec        *prometheus.CounterVec
}

// Inc adds 1 to a counter.
func (m *Counter) Inc(labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Inc()
	} else {
		m.single.Inc()
	}
}

// Add adds the given amount to a counter.
func (m *Counter) Add(val float64, labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Add(val)
	} else {
		m.single.Add(val)
	}
}

// Value returns the current amount of a counter.
func (m *Counter) Value(labelVals ...string) float64 {
	var metric prometheus.Metric
	if m.vec != nil {
		metric = m.vec.WithLabelValues(labelVals...)
	} else {
		metric = m.single
	}
	var metricpb dto.Metric
	if err := metric.Write(&metricpb); err != nil {
		klog.Errorf("failed to write counter metric: %v", err)
		return 0.0
	}
	return metricpb.GetCounter().GetValue()
}

// Gauge is a wrapper around a Prometheus Gauge or GaugeVec object.
type Gauge struct {
	labelNames []string
	single     prometheus.Gauge
	vec        *prometheus.GaugeVec
}

// Inc adds 1 to a gauge.
func (m *Gauge) Inc(labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Inc()
	} else {
		m.single.Inc()
	}
}

// Dec subtracts 1 from a gauge.
func (m *Gauge) Dec(labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Dec()
	} else {
		m.single.Dec()
	}
}

// Set sets the value of a gauge.
func (m *Gauge) Set(val float64, labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Set(val)
	} else {
		m.single.Set(val)
	}
}

// Value returns the current amount of a gauge.
func (m *Gauge) Value(labelVals ...string) float64 {
	var metric prometheus.Metric
	if m.vec != nil {
		metric = m.vec.WithLabelValues(labelVals...)
	} else {
		metric = m.single
	}
	var metricpb dto.Metric
	if err := metric.Write(&metricpb); err != nil {
		klog.Errorf("failed to write gauge metric: %v", err)
		return 0.0
	}
	return metricpb.GetGauge().GetValue()
}

// Histogram is a wrapper around a Prometheus Histogram or HistogramVec object.
type Histogram struct {
	labelNames []string
	single     prometheus.Histogram
	vec        *prometheus.HistogramVec
}

// Observe adds a single observation to the histogram.
func (m *Histogram) Observe(val float64, labelVals ...string) {
	if m.vec != nil {
		m.vec.WithLabelValues(labelVals...).Observe(val)
	} else {
		m.single.Observe(val)
	}
}

// Info returns the count and sum of observations for the histogram.
func (m *Histogram) Info(labelVals ...string) (uint64, float64) {
	var metric prometheus.Metric
	if m.vec != nil {
		metric = m.vec.WithLabelValues(labelVals...).(prometheus.Metric)
	} else {
		metric = m.single
	}
	var metricpb dto.Metric
	if err := metric.Write(&metricpb); err != nil {
		klog.Errorf("failed to write histogram metric: %v", err)
		return 0, 0.0
	}
	histVal := metricpb.GetHistogram()
	return histVal.GetSampleCount(), histVal.GetSampleSum()
}
