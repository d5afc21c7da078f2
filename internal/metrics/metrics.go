// Copyright 2024 Alexandre Mahdhaoui
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

// Package metrics exposes Prometheus metrics about polls and scenarios.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/alexandremahdhaoui/tagconverge/pkg/poll"
	"github.com/alexandremahdhaoui/tagconverge/pkg/scenario"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagconverge"

// Recorder records metrics on a private registry. It implements
// poll.Observer and scenario.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	pollAttempts     *prometheus.CounterVec
	scenarioOutcomes *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	waitAttempts     prometheus.Histogram
	waitDuration     *prometheus.HistogramVec
	cleanupFailures  prometheus.Counter
}

// New creates a Recorder and registers its collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "attempts_total",
			Help:      "Condition evaluations, by whether the condition was satisfied.",
		}, []string{"satisfied"}),
		scenarioOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "outcomes_total",
			Help:      "Finished scenarios, by outcome.",
		}, []string{"outcome"}),
		scenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "duration_seconds",
			Help:      "Scenario duration, by outcome.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"outcome"}),
		waitAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "wait_attempts",
			Help:      "Evaluations needed by a consistency wait.",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Time spent waiting for a condition, by scenario phase.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scenario",
			Name:      "cleanup_failures_total",
			Help:      "Reverts that failed and may have left external state behind.",
		}),
	}

	r.registry.MustRegister(
		r.pollAttempts,
		r.scenarioOutcomes,
		r.scenarioDuration,
		r.waitAttempts,
		r.waitDuration,
		r.cleanupFailures,
	)
	return r
}

// ObserveAttempt implements poll.Observer.
func (r *Recorder) ObserveAttempt(a poll.Attempt) {
	r.pollAttempts.WithLabelValues(strconv.FormatBool(a.Satisfied)).Inc()
}

// RecordScenario implements scenario.Recorder.
func (r *Recorder) RecordScenario(res *scenario.Result) {
	outcome := string(res.Outcome)
	r.scenarioOutcomes.WithLabelValues(outcome).Inc()
	r.scenarioDuration.WithLabelValues(outcome).Observe(res.Duration.Seconds())
	if res.Wait != nil {
		r.waitAttempts.Observe(float64(res.Wait.Attempts))
		r.waitDuration.WithLabelValues(scenario.PhaseConverge).Observe(res.Wait.Elapsed.Seconds())
	}
	if res.Settle != nil {
		r.waitDuration.WithLabelValues(scenario.PhaseSettle).Observe(res.Settle.Elapsed.Seconds())
	}
	if res.CleanupError != nil {
		r.cleanupFailures.Inc()
	}
}

// Registry returns the registry holding every collector.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the metrics to path, e.g. for the node exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
