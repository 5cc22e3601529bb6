// Copyright 2025 Packetd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics defines the forwarding metrics of the data plane.
type Metrics struct {
	ForwardedPacketsTotal *prometheus.CounterVec
	DroppedPacketsTotal   *prometheus.CounterVec
}

// NewMetrics initializes the forwarding metrics and registers them with the
// default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		ForwardedPacketsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_forwarded_pkts_total",
				Help: "Total number of datagrams forwarded, by egress interface index",
			},
			[]string{"interface"},
		),
		DroppedPacketsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_dropped_pkts_total",
				Help: "Total number of datagrams dropped by the router",
			},
			[]string{"reason"},
		),
	}
}

var metrics = NewMetrics() // There can be only one.
