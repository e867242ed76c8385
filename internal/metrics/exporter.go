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

package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Exporter wires the package's OTel instruments to a pull-based
// Prometheus scrape endpoint: a sdk/metric.MeterProvider backed by the
// otel/exporters/prometheus Reader, installed as the global provider so
// every meter.Int64Counter/Int64ObservableGauge created via New()
// (before or after this call — otel's global package delegates) reports
// through it.
type Exporter struct {
	provider *sdkmetric.MeterProvider
}

// NewPrometheusExporter builds the Reader/MeterProvider pair and installs
// it globally. Callers that never call this keep the no-op global
// provider OTel defaults to, exactly like most of this repository's unit
// tests, which construct a *Metrics without ever wanting a scrape
// endpoint.
func NewPrometheusExporter() (*Exporter, error) {
	reader, err := otelprom.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return &Exporter{provider: provider}, nil
}

// Handler returns the http.Handler a caller mounts at /metrics; the
// otel/exporters/prometheus Reader registers itself with the default
// Prometheus registry, so promhttp.Handler (reading that same default
// registry) is all a scrape endpoint needs.
func (e *Exporter) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and releases the underlying MeterProvider. Errors are
// the caller's to log; Shutdown itself does not log, matching the rest
// of this package's no-side-effects-beyond-the-call contract.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
