// Copyright 2026 The Shahin GRC Authors
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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps the OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a meter instance. When disabled, instruments are no-ops.
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{meter: otel.Meter("noop")}, nil
	}
	return &Meter{meter: otel.Meter(serviceName)}, nil
}

// ProvisioningInstruments are the counters recorded per provisioning run.
type ProvisioningInstruments struct {
	Runs                  metric.Int64Counter
	Failures              metric.Int64Counter
	NotificationFallbacks metric.Int64Counter
	RunDuration           metric.Float64Histogram
}

// NewProvisioningInstruments creates the provisioning metric set.
func (m *Meter) NewProvisioningInstruments() (*ProvisioningInstruments, error) {
	runs, err := m.meter.Int64Counter("provisioning_runs_total",
		metric.WithDescription("Completed provisioning runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	failures, err := m.meter.Int64Counter("provisioning_failures_total",
		metric.WithDescription("Provisioning runs that rolled back"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	fallbacks, err := m.meter.Int64Counter("notification_fallbacks_total",
		metric.WithDescription("Welcome emails diverted to the fallback artifact"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	duration, err := m.meter.Float64Histogram("provisioning_run_duration",
		metric.WithDescription("Wall time of a provisioning run"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &ProvisioningInstruments{
		Runs:                  runs,
		Failures:              failures,
		NotificationFallbacks: fallbacks,
		RunDuration:           duration,
	}, nil
}
