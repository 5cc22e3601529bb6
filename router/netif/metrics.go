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

package netif

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics defines the link-layer metrics, labelled by interface.
type Metrics struct {
	FramesInTotal      *prometheus.CounterVec
	FramesOutTotal     *prometheus.CounterVec
	FramesDroppedTotal *prometheus.CounterVec
	ARPRequestsTotal   *prometheus.CounterVec
	ARPRepliesTotal    *prometheus.CounterVec
	NeighborsLearned   *prometheus.CounterVec
	PendingDatagrams   *prometheus.GaugeVec
}

// NewMetrics initializes the link-layer metrics and registers them with the
// default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesInTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_frames_in_total",
				Help: "Total number of frames received from the wire",
			},
			[]string{"interface"},
		),
		FramesOutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_frames_out_total",
				Help: "Total number of frames handed to the wire",
			},
			[]string{"interface"},
		),
		FramesDroppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_frames_dropped_total",
				Help: "Total number of frames dropped by the interface",
			},
			[]string{"interface", "reason"},
		),
		ARPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_arp_requests_total",
				Help: "Total number of ARP requests transmitted",
			},
			[]string{"interface"},
		),
		ARPRepliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_arp_replies_total",
				Help: "Total number of ARP replies transmitted",
			},
			[]string{"interface"},
		),
		NeighborsLearned: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "netif_neighbors_learned_total",
				Help: "Total number of neighbor mappings learned from ARP traffic",
			},
			[]string{"interface"},
		),
		PendingDatagrams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "netif_pending_datagrams",
				Help: "Number of datagrams queued awaiting ARP resolution",
			},
			[]string{"interface"},
		),
	}
}

var theMetrics = NewMetrics() // There can be only one.

// ifMetrics is the per-interface slice of the metric bundle.
type ifMetrics struct {
	framesIn               prometheus.Counter
	framesOut              prometheus.Counter
	framesDroppedMalformed prometheus.Counter
	framesDroppedForeign   prometheus.Counter
	arpRequestsSent        prometheus.Counter
	arpRepliesSent         prometheus.Counter
	neighborsLearned       prometheus.Counter
	pendingDatagrams       prometheus.Gauge
}

func interfaceMetrics(name string) ifMetrics {
	return ifMetrics{
		framesIn:               theMetrics.FramesInTotal.WithLabelValues(name),
		framesOut:              theMetrics.FramesOutTotal.WithLabelValues(name),
		framesDroppedMalformed: theMetrics.FramesDroppedTotal.WithLabelValues(name, "malformed"),
		framesDroppedForeign:   theMetrics.FramesDroppedTotal.WithLabelValues(name, "foreign"),
		arpRequestsSent:        theMetrics.ARPRequestsTotal.WithLabelValues(name),
		arpRepliesSent:         theMetrics.ARPRepliesTotal.WithLabelValues(name),
		neighborsLearned:       theMetrics.NeighborsLearned.WithLabelValues(name),
		pendingDatagrams:       theMetrics.PendingDatagrams.WithLabelValues(name),
	}
}
