// Copyright 2025 Blink Labs Software
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

package warden

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

type runtimeMetrics struct {
	calls       *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
	sagas       *prometheus.CounterVec
	contracts   prometheus.Gauge
}

// init registers with promRegistry. A nil registry still yields usable,
// unregistered collectors.
func (m *runtimeMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.calls = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_contract_calls_total",
			Help: "contract calls by kind, operation and outcome",
		},
		[]string{"kind", "op", "outcome"},
	)
	m.callLatency = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_contract_call_duration_seconds",
			Help:    "contract call latency including commit",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15), // 0.5ms to ~8s
		},
		[]string{"kind", "op"},
	)
	m.sagas = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_sagas_total",
			Help: "finished sagas by kind and terminal state",
		},
		[]string{"kind", "state"},
	)
	m.contracts = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "warden_contract_instances",
		Help: "number of instantiated contracts",
	})
}

func (m *runtimeMetrics) observeCall(kind string, op string, start time.Time, err error) {
	if kind == "" {
		kind = "unknown"
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	m.calls.WithLabelValues(kind, op, outcome).Inc()
	m.callLatency.WithLabelValues(kind, op).Observe(time.Since(start).Seconds())
}
