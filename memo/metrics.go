// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memo

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("hitsave.memo")

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	hashLatency metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"memo_hits_total",
			metric.WithDescription("Total number of memoized calls served from the store"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"memo_misses_total",
			metric.WithDescription("Total number of memoized calls that executed the function"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		hashLatency, err = meter.Float64Histogram(
			"memo_key_derivation_duration_seconds",
			metric.WithDescription("Duration of cache key derivation (code analysis plus argument hashing)"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}

func recordMissMetric(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordHashLatency(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	hashLatency.Record(ctx, duration.Seconds())
}
