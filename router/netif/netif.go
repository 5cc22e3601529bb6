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

// Package netif implements a link-layer network interface: it frames
// outgoing IPv4 datagrams, resolves next-hop hardware addresses via ARP,
// and surfaces arrived datagrams to its owner.
//
// The interface performs no I/O. The host feeds arrived wire frames in with
// Receive, drains frames ready for the wire with PollOutbound, and drives
// all timing by calling Tick with the elapsed time. Every operation runs to
// completion without blocking.
package netif

import (
	"net/netip"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/packetd/packetd/pkg/addr"
	"github.com/packetd/packetd/pkg/log"
)

const (
	// CacheTTL is how long a learned neighbor mapping stays usable.
	CacheTTL = 30 * time.Second
	// RetryInterval bounds ARP request retransmission to one per interval
	// per unresolved address.
	RetryInterval = 5 * time.Second
)

// neighbor is one resolved IP-to-MAC mapping. Static entries are pinned by
// configuration and never expire.
type neighbor struct {
	mac       addr.MAC
	learnedAt time.Duration
	static    bool
}

// queuedDatagram is a datagram waiting for its next hop to resolve.
type queuedDatagram struct {
	dgram      Datagram
	enqueuedAt time.Duration
}

// resolution tracks one in-flight ARP resolution: the last time a request
// went out and the datagrams waiting for the answer, in arrival order.
// Queued datagrams have no expiry of their own; they leave the queue only
// when the address resolves.
type resolution struct {
	lastRequest time.Duration
	waiting     []queuedDatagram
}

// Interface is a network interface with a fixed hardware and IPv4 address.
// All internal state is guarded by one mutex; each method is one critical
// section, so an Interface may be shared between a reader goroutine and the
// routing loop.
type Interface struct {
	mu   sync.Mutex
	name string
	mac  addr.MAC
	ip   netip.Addr

	// now is the interface's logical clock. It only advances in Tick.
	now       time.Duration
	neighbors map[netip.Addr]neighbor
	pending   map[netip.Addr]*resolution
	outbound  [][]byte
	inbound   []Datagram

	logger  log.Logger
	metrics ifMetrics
}

// New creates an interface with the given name and addresses. The name is
// only used for logging and metrics.
func New(name string, mac addr.MAC, ip netip.Addr) *Interface {
	return &Interface{
		name:      name,
		mac:       mac,
		ip:        ip,
		neighbors: make(map[netip.Addr]neighbor),
		pending:   make(map[netip.Addr]*resolution),
		logger:    log.New("iface", name),
		metrics:   interfaceMetrics(name),
	}
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// MAC returns the interface hardware address.
func (i *Interface) MAC() addr.MAC { return i.mac }

// IP returns the interface IPv4 address.
func (i *Interface) IP() netip.Addr { return i.ip }

// AddStaticNeighbor pins a neighbor mapping. Static entries never expire
// and are not overwritten by observed ARP traffic.
func (i *Interface) AddStaticNeighbor(ip netip.Addr, mac addr.MAC) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.neighbors[ip] = neighbor{mac: mac, learnedAt: i.now, static: true}
}

// Send requests transmission of dgram toward nextHop. If the next hop's
// hardware address is known the framed datagram goes straight onto the
// outbound queue; otherwise the datagram is queued and an ARP request is
// issued, subject to the per-address retry limit. Send never blocks and
// never fails: an unresolvable next hop keeps the datagram queued while
// requests are retransmitted at most once per RetryInterval.
func (i *Interface) Send(dgram Datagram, nextHop netip.Addr) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if n, ok := i.neighbors[nextHop]; ok {
		i.pushOutbound(buildIPv4Frame(i.mac, n.mac, dgram))
		return
	}

	res, ok := i.pending[nextHop]
	if !ok {
		res = &resolution{lastRequest: i.now}
		i.pending[nextHop] = res
		i.sendRequest(nextHop)
	} else if i.now-res.lastRequest >= RetryInterval {
		res.lastRequest = i.now
		i.sendRequest(nextHop)
	}
	res.waiting = append(res.waiting, queuedDatagram{dgram: dgram, enqueuedAt: i.now})
	i.metrics.pendingDatagrams.Inc()
}

// Receive processes one arrived wire frame. Frames not addressed to this
// interface and frames with malformed payloads are dropped without effect.
// A surfaced IPv4 datagram is queued for PollInbound; observed ARP traffic
// teaches the neighbor cache and may trigger a reply or a flush of queued
// datagrams.
func (i *Interface) Receive(raw []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		i.metrics.framesDroppedMalformed.Inc()
		return
	}
	i.metrics.framesIn.Inc()
	dst, err := addr.MACFromBytes(eth.DstMAC)
	if err != nil {
		i.metrics.framesDroppedMalformed.Inc()
		return
	}

	switch eth.EthernetType {
	case layers.EthernetTypeIPv4:
		if dst != i.mac {
			i.metrics.framesDroppedForeign.Inc()
			return
		}
		dgram, ok := decodeIPv4(eth.Payload)
		if !ok {
			i.metrics.framesDroppedMalformed.Inc()
			return
		}
		i.inbound = append(i.inbound, dgram)
	case layers.EthernetTypeARP:
		if dst != i.mac && !dst.IsBroadcast() {
			i.metrics.framesDroppedForeign.Inc()
			return
		}
		arp, ok := decodeARP(eth.Payload)
		if !ok {
			i.metrics.framesDroppedMalformed.Inc()
			return
		}
		i.handleARP(arp)
	default:
		i.metrics.framesDroppedForeign.Inc()
	}
}

// handleARP learns from any valid ARP message and answers requests for our
// own address. Both requests and replies teach the cache: ARP semantics let
// every observed sender mapping be cached.
func (i *Interface) handleARP(arp layers.ARP) {
	senderIP := addr.IPv4FromSlice(arp.SourceProtAddress)
	senderMAC, err := addr.MACFromBytes(arp.SourceHwAddress)
	if err != nil || !senderIP.IsValid() {
		i.metrics.framesDroppedMalformed.Inc()
		return
	}
	targetIP := addr.IPv4FromSlice(arp.DstProtAddress)

	if existing, ok := i.neighbors[senderIP]; !ok || !existing.static {
		i.neighbors[senderIP] = neighbor{mac: senderMAC, learnedAt: i.now}
		i.metrics.neighborsLearned.Inc()
	}

	switch arp.Operation {
	case layers.ARPRequest:
		if targetIP == i.ip {
			i.pushOutbound(buildARPReply(i.mac, senderMAC, i.ip, senderIP))
			i.metrics.arpRepliesSent.Inc()
		}
	case layers.ARPReply:
		if targetIP == i.ip {
			i.resolve(senderIP, senderMAC)
		}
	}
}

// resolve flushes every datagram queued for ip onto the outbound queue, in
// their original order, now framed with the resolved hardware address.
func (i *Interface) resolve(ip netip.Addr, mac addr.MAC) {
	res, ok := i.pending[ip]
	if !ok {
		return
	}
	delete(i.pending, ip)
	for _, q := range res.waiting {
		i.pushOutbound(buildIPv4Frame(i.mac, mac, q.dgram))
		i.metrics.pendingDatagrams.Dec()
	}
	i.logger.Debug("Resolved next hop", "ip", ip, "mac", mac,
		"flushed", len(res.waiting))
}

// Tick advances the interface clock by elapsed and performs time-driven
// maintenance: expired neighbor entries are evicted and overdue ARP
// requests are retransmitted, at most one per RetryInterval per address.
func (i *Interface) Tick(elapsed time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.now += elapsed
	for ip, n := range i.neighbors {
		if !n.static && i.now-n.learnedAt > CacheTTL {
			delete(i.neighbors, ip)
		}
	}
	for ip, res := range i.pending {
		if i.now-res.lastRequest >= RetryInterval {
			res.lastRequest = i.now
			i.sendRequest(ip)
		}
	}
}

// Announce enqueues a gratuitous ARP request for the interface's own
// address so that neighbors refresh their caches.
func (i *Interface) Announce() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sendRequest(i.ip)
}

// PollInbound removes and returns the oldest datagram that arrived for
// this interface. It never blocks.
func (i *Interface) PollInbound() (Datagram, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.inbound) == 0 {
		return Datagram{}, false
	}
	dgram := i.inbound[0]
	i.inbound = i.inbound[1:]
	return dgram, true
}

// PollOutbound removes and returns the oldest frame ready for the wire.
// It never blocks.
func (i *Interface) PollOutbound() ([]byte, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.outbound) == 0 {
		return nil, false
	}
	frame := i.outbound[0]
	i.outbound = i.outbound[1:]
	i.metrics.framesOut.Inc()
	return frame, true
}

func (i *Interface) sendRequest(targetIP netip.Addr) {
	i.pushOutbound(buildARPRequest(i.mac, i.ip, targetIP))
	i.metrics.arpRequestsSent.Inc()
}

func (i *Interface) pushOutbound(frame []byte) {
	i.outbound = append(i.outbound, frame)
}
