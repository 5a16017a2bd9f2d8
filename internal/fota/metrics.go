/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"strconv"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts flow transitions and exposes the ledger occupancy.
type Metrics struct {
	transitions *prometheus.CounterVec
	results     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, ledger *Ledger) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fota_flow_transitions_total",
			Help: "Device flow transitions by target state.",
		}, []string{"state"}),
		results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fota_flow_results_total",
			Help: "Result codes of finished device flows.",
		}, []string{"result"}),
	}
	if ledger != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fota_pending_callbacks",
			Help: "Requests waiting for a response from the gateway core.",
		}, func() float64 {
			return float64(ledger.Live())
		})
	}
	return m
}

func (m *Metrics) Observe(_ context.Context, ev model.FlowEvent) {
	m.transitions.WithLabelValues(string(ev.State)).Inc()
	if ev.State.Terminal() {
		m.results.WithLabelValues(strconv.FormatInt(int64(ev.Result), 10)).Inc()
	}
}
