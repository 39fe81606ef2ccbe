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

package monitoring

import (
	"fmt"
	"strings"
	"sync"
)

// InertMetricFactory creates metrics that are recorded in memory only.
// It is the factory used when no monitoring is configured, and in tests.
type InertMetricFactory struct{}

// NewCounter creates a new inert Counter.
func (InertMetricFactory) NewCounter(name, help string, labelNames ...string) Counter {
	return &inertFloat{labelCount: len(labelNames), vals: make(map[string]float64)}
}

// NewGauge creates a new inert Gauge.
func (InertMetricFactory) NewGauge(name, help string, labelNames ...string) Gauge {
	return &inertFloat{labelCount: len(labelNames), vals: make(map[string]float64)}
}

// NewHistogram creates a new inert Histogram.
func (InertMetricFactory) NewHistogram(name, help string, labelNames ...string) Histogram {
	return &inertDistribution{
		labelCount: len(labelNames),
		counts:     make(map[string]uint64),
		sums:       make(map[string]float64),
	}
}

func keyForLabels(labelVals []string, count int) (string, error) {
	if len(labelVals) != count {
		return "", fmt.Errorf("got %d (%v) labels, want %d", len(labelVals), labelVals, count)
	}
	return strings.Join(labelVals, "|"), nil
}

// inertFloat implements both Counter and Gauge.
type inertFloat struct {
	labelCount int
	mu         sync.Mutex
	vals       map[string]float64
}

func (m *inertFloat) Inc(labelVals ...string) {
	m.Add(1.0, labelVals...)
}

func (m *inertFloat) Dec(labelVals ...string) {
	m.Add(-1.0, labelVals...)
}

func (m *inertFloat) Add(val float64, labelVals ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := keyForLabels(labelVals, m.labelCount)
	if err != nil {
		return
	}
	m.vals[key] += val
}

func (m *inertFloat) Set(val float64, labelVals ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := keyForLabels(labelVals, m.labelCount)
	if err != nil {
		return
	}
	m.vals[key] = val
}

func (m *inertFloat) Value(labelVals ...string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := keyForLabels(labelVals, m.labelCount)
	if err != nil {
		return 0
	}
	return m.vals[key]
}

// inertDistribution implements Histogram.
type inertDistribution struct {
	labelCount int
	mu         sync.Mutex
	counts     map[string]uint64
	sums       map[string]float64
}

func (m *inertDistribution) Observe(val float64, labelVals ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := keyForLabels(labelVals, m.labelCount)
	if err != nil {
		return
	}
	m.counts[key]++
	m.sums[key] += val
}

func (m *inertDistribution) Info(labelVals ...string) (uint64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, err := keyForLabels(labelVals, m.labelCount)
	if err != nil {
		return 0, 0
	}
	return m.counts[key], m.sums[key]
}
