// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import "github.com/prometheus/client_golang/prometheus"

const namespace = "exchange_host"

type metrics struct {
	messages *prometheus.CounterVec
	frames   *prometheus.CounterVec
	gasUsed  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Applied messages by selector and status.",
		}, []string{"selector", "status"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Nested call frames by kind and outcome.",
		}, []string{"kind", "outcome"}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gas_used",
			Help:      "Gas used per applied message.",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.frames, m.gasUsed)
	}
	return m
}
