// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package brains

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	trainTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stirred_brain_train_total",
		Help: "Training messages handled, by status",
	}, []string{"status"})

	generateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stirred_brain_generate_total",
		Help: "Generate messages handled, by status",
	}, []string{"status"})

	generateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stirred_brain_generate_duration_seconds",
		Help:    "Time spent generating a sentence",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5},
	})

	saveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stirred_brain_save_total",
		Help: "Save attempts, by kind (interval, force, final) and status (ok, skipped, error)",
	}, []string{"kind", "status"})

	mailboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stirred_brain_mailbox_depth",
		Help: "Messages waiting in a brain's mailbox",
	}, []string{"brain"})

	brainsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stirred_brains_registered",
		Help: "Number of brains currently registered",
	})
)

// OTel instruments for every handled message. They report through whatever
// MeterProvider telemetry.Init installed.
var (
	meter = otel.Meter(tracerName)

	messagesTotal   metric.Int64Counter
	messageDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		messagesTotal, err = meter.Int64Counter(
			"brains_messages_total",
			metric.WithDescription("Mailbox messages handled by brain workers"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		messageDuration, err = meter.Float64Histogram(
			"brains_message_duration_seconds",
			metric.WithDescription("Time a worker spent handling one message"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordMessage(ctx context.Context, kind string, duration time.Duration, err error) {
	if initMetrics() != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", statusLabel(err)),
	)
	messagesTotal.Add(ctx, 1, attrs)
	messageDuration.Record(ctx, duration.Seconds(), attrs)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
