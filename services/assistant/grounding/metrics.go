// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grounding

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for grounding operations.
var meter = otel.Meter("serviceit.grounding")

// Metrics for grounding operations.
var (
	validationsTotal   metric.Int64Counter
	violationsTotal    metric.Int64Counter
	correctionsTotal   metric.Int64Counter
	validationDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		validationsTotal, err = meter.Int64Counter(
			"grounding_validations_total",
			metric.WithDescription("Total grounding validations by mode and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		violationsTotal, err = meter.Int64Counter(
			"grounding_violations_total",
			metric.WithDescription("Total grounding violations by checker and type"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		correctionsTotal, err = meter.Int64Counter(
			"grounding_corrections_total",
			metric.WithDescription("Total corrective substitutions applied"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validationDuration, err = meter.Float64Histogram(
			"grounding_validation_duration_seconds",
			metric.WithDescription("Grounding validation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordValidation records one completed validation.
func recordValidation(ctx context.Context, result *Result, duration time.Duration) {
	if validationsTotal == nil {
		return
	}
	validationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(result.Mode)),
		attribute.Bool("grounded", result.Grounded),
	))
	validationDuration.Record(ctx, duration.Seconds())
	for _, v := range result.Violations {
		violationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("checker", v.Checker),
			attribute.String("type", string(v.Type)),
		))
	}
}

// recordCorrections records applied substitutions.
func recordCorrections(ctx context.Context, count int) {
	if correctionsTotal == nil || count == 0 {
		return
	}
	correctionsTotal.Add(ctx, int64(count))
}
