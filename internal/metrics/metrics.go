// Copyright 2025 Google LLC
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

// Package metrics instruments internal/shim with OpenTelemetry counters
// and gauges: IPC round-trips, path-cache hits/misses/negative-hits, and
// live buffer/descriptor counts. This is the meter-per-concern pattern
// the teacher's common/otel_metrics.go used for GCS/file-cache metrics,
// adapted to this repository's own concerns (spec.md §8 scenario 3 asks
// that a negative-cache hit be "observable via instrumenting the
// semaphore-post count", which is exactly what RoundTrip below gives a
// test or operator).
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("pgdb_fileshim")

// Metrics holds the counters and observable gauges recorded by
// internal/shim. A nil *Metrics is safe to call every method on: all
// methods no-op when their receiver is nil, so callers that don't care
// about metrics (e.g. most unit tests) can pass nil instead of building
// a real one.
type Metrics struct {
	roundTrips    metric.Int64Counter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
	negativeHits  metric.Int64Counter
	descOpens     metric.Int64Counter
	descCloses    metric.Int64Counter
	liveBuffers   *int64Gauge
	liveDescs     *int64Gauge
}

// int64Gauge is a tiny observable-gauge wrapper: OTel's callback-based
// observable instruments need somewhere to read the current value from
// at collection time, so this pairs the registered instrument with the
// plain counter backing it.
type int64Gauge struct {
	value int64
}

func (g *int64Gauge) Set(v int64) {
	if g == nil {
		return
	}
	g.value = v
}

// New builds the metrics surface and registers every instrument with the
// global OTel meter provider. Callers that have not configured a meter
// provider (e.g. most tests) still get working no-op instruments, since
// that is what the default global provider returns.
func New() (*Metrics, error) {
	m := &Metrics{liveBuffers: &int64Gauge{}, liveDescs: &int64Gauge{}}

	var err error
	m.roundTrips, err = meter.Int64Counter("pgdb_fileshim/ipc_round_trips",
		metric.WithDescription("Number of IPC round-trips to the controller."))
	if err != nil {
		return nil, err
	}
	m.cacheHits, err = meter.Int64Counter("pgdb_fileshim/path_cache_hits",
		metric.WithDescription("Opens served from an already-cached positive path-cache entry."))
	if err != nil {
		return nil, err
	}
	m.cacheMisses, err = meter.Int64Counter("pgdb_fileshim/path_cache_misses",
		metric.WithDescription("Opens that required a fresh IPC round-trip and installed a new positive or negative entry."))
	if err != nil {
		return nil, err
	}
	m.negativeHits, err = meter.Int64Counter("pgdb_fileshim/path_cache_negative_hits",
		metric.WithDescription("Opens short-circuited by a sticky negative path-cache entry."))
	if err != nil {
		return nil, err
	}
	m.descOpens, err = meter.Int64Counter("pgdb_fileshim/descriptor_opens",
		metric.WithDescription("Virtual descriptors created."))
	if err != nil {
		return nil, err
	}
	m.descCloses, err = meter.Int64Counter("pgdb_fileshim/descriptor_closes",
		metric.WithDescription("Virtual descriptors closed."))
	if err != nil {
		return nil, err
	}
	_, err = meter.Int64ObservableGauge("pgdb_fileshim/live_buffers",
		metric.WithDescription("Data buffers currently reachable from the path cache or descriptor table."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.liveBuffers.value)
			return nil
		}))
	if err != nil {
		return nil, err
	}
	_, err = meter.Int64ObservableGauge("pgdb_fileshim/live_descriptors",
		metric.WithDescription("Virtual descriptors currently open."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.liveDescs.value)
			return nil
		}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RoundTrip() {
	if m == nil {
		return
	}
	m.roundTrips.Add(context.Background(), 1)
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(context.Background(), 1)
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(context.Background(), 1)
}

func (m *Metrics) NegativeHit() {
	if m == nil {
		return
	}
	m.negativeHits.Add(context.Background(), 1)
}

func (m *Metrics) DescriptorOpened() {
	if m == nil {
		return
	}
	m.descOpens.Add(context.Background(), 1)
}

func (m *Metrics) DescriptorClosed() {
	if m == nil {
		return
	}
	m.descCloses.Add(context.Background(), 1)
}

// SetLiveBuffers and SetLiveDescriptors update the point-in-time gauges
// internal/shim refreshes after every mutation under its lock.
func (m *Metrics) SetLiveBuffers(n int) {
	if m == nil {
		return
	}
	m.liveBuffers.Set(int64(n))
}

func (m *Metrics) SetLiveDescriptors(n int) {
	if m == nil {
		return
	}
	m.liveDescs.Set(int64(n))
}
