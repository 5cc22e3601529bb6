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

// Package router contains the IPv4 forwarding logic: a DataPlane that owns
// a set of network interfaces and an append-only routing table, pulls
// arrived datagrams from the interfaces and re-injects them into the
// interface chosen by longest-prefix match.
package router

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/packetd/packetd/pkg/addr"
	"github.com/packetd/packetd/pkg/log"
	"github.com/packetd/packetd/router/netif"
)

var (
	errInvalidPrefixLen = errors.New("prefix length out of range")
	errUnknownInterface = errors.New("route names an unknown interface")
	errNilInterface     = errors.New("nil interface")
)

// DataPlane forwards IPv4 datagrams between network interfaces. Interfaces
// and routes are added during setup; the host then repeatedly calls Route
// to move datagrams and Tick to drive timers. The table and interface list
// are guarded by one mutex; each interface serializes its own state.
type DataPlane struct {
	mu         sync.Mutex
	interfaces []*netif.Interface
	table      routingTable
	logger     log.Logger
}

// New returns an empty data plane.
func New() *DataPlane {
	return &DataPlane{logger: log.New("comp", "dataplane")}
}

// AddInterface appends an interface to the data plane. Its position in the
// interface list is the index that routes refer to.
func (d *DataPlane) AddInterface(ifc *netif.Interface) (int, error) {
	if ifc == nil {
		return 0, errNilInterface
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interfaces = append(d.interfaces, ifc)
	return len(d.interfaces) - 1, nil
}

// Interface returns the interface at the given index.
func (d *DataPlane) Interface(idx int) *netif.Interface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interfaces[idx]
}

// AddRoute appends a route for prefix/prefixLen via the interface at
// ifIndex. An invalid (zero) nextHop marks a directly attached network.
// The table is append-only; overlapping and duplicate prefixes are legal
// and resolved at lookup time. Correctness of the lookup mask depends on
// the prefix length, so out-of-range values are rejected here.
func (d *DataPlane) AddRoute(prefix netip.Addr, prefixLen uint8, nextHop netip.Addr, ifIndex int) error {
	if prefixLen > 32 {
		return fmt.Errorf("%w: %d", errInvalidPrefixLen, prefixLen)
	}
	key := addr.IPv4ToUint32(prefix)
	d.mu.Lock()
	defer d.mu.Unlock()
	if ifIndex < 0 || ifIndex >= len(d.interfaces) {
		return fmt.Errorf("%w: %d", errUnknownInterface, ifIndex)
	}
	d.table.add(route{prefix: key, prefixLen: prefixLen, nextHop: nextHop, ifIndex: ifIndex})
	d.logger.Debug("Added route", "prefix", prefix, "len", prefixLen,
		"next_hop", nextHop, "interface", ifIndex)
	return nil
}

// Route performs one scheduling pass: for every interface, pull arrived
// datagrams until the interface reports none, forwarding each one.
func (d *DataPlane) Route() {
	d.mu.Lock()
	interfaces := d.interfaces
	d.mu.Unlock()
	for _, ifc := range interfaces {
		for {
			dgram, ok := ifc.PollInbound()
			if !ok {
				break
			}
			d.forward(dgram)
		}
	}
}

// Tick advances the clocks of all owned interfaces.
func (d *DataPlane) Tick(elapsed time.Duration) {
	d.mu.Lock()
	interfaces := d.interfaces
	d.mu.Unlock()
	for _, ifc := range interfaces {
		ifc.Tick(elapsed)
	}
}

// forward applies the TTL policy and the routing decision to one datagram.
// All drops are silent: this router speaks best-effort IP and generates no
// ICMP errors.
func (d *DataPlane) forward(dgram netif.Datagram) {
	// A datagram must never arrive with a non-positive TTL and still be
	// routed. No decrement, no checksum work.
	if dgram.Header.TTL == 0 {
		metrics.DroppedPacketsTotal.WithLabelValues("invalid_ttl").Inc()
		return
	}
	dst := dgram.Dst()
	if !dst.IsValid() {
		metrics.DroppedPacketsTotal.WithLabelValues("invalid_dst").Inc()
		return
	}

	d.mu.Lock()
	r, ok := d.table.lookup(dst)
	var egress *netif.Interface
	if ok {
		egress = d.interfaces[r.ifIndex]
	}
	d.mu.Unlock()
	if !ok {
		metrics.DroppedPacketsTotal.WithLabelValues("no_route").Inc()
		return
	}

	dgram.Header.TTL--
	if dgram.Header.TTL == 0 {
		metrics.DroppedPacketsTotal.WithLabelValues("ttl_expired").Inc()
		return
	}

	// The checksum is recomputed when the egress interface frames the
	// datagram, covering the decremented TTL.
	nextHop := r.nextHop
	if !nextHop.IsValid() {
		// Directly attached network: resolve the destination itself.
		nextHop = dst
	}
	egress.Send(dgram, nextHop)
	metrics.ForwardedPacketsTotal.WithLabelValues(strconv.Itoa(r.ifIndex)).Inc()
}
