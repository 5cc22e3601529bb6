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

package netif_test

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/packetd/pkg/addr"
	"github.com/packetd/packetd/router/netif"
)

var (
	macA = mustMAC("aa:aa:aa:aa:aa:aa")
	macB = mustMAC("bb:bb:bb:bb:bb:bb")
	macC = mustMAC("cc:cc:cc:cc:cc:cc")
	ipA  = netip.MustParseAddr("10.0.0.1")
	ipB  = netip.MustParseAddr("10.0.0.2")
	ipC  = netip.MustParseAddr("10.0.0.3")
)

func mustMAC(s string) addr.MAC {
	m, err := addr.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func newIface(t *testing.T) *netif.Interface {
	return netif.New(t.Name(), macA, ipA)
}

func datagram(dst netip.Addr, payload string) netif.Datagram {
	return netif.Datagram{
		Header: layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IP{10, 0, 0, 1},
			DstIP:    dst.AsSlice(),
		},
		Payload: []byte(payload),
	}
}

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func arpFrame(t *testing.T, op uint16, senderMAC addr.MAC, senderIP netip.Addr,
	targetMAC, dstMAC addr.MAC, targetIP netip.Addr) []byte {

	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       senderMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   senderMAC.HardwareAddr(),
		SourceProtAddress: senderIP.AsSlice(),
		DstHwAddress:      targetMAC.HardwareAddr(),
		DstProtAddress:    targetIP.AsSlice(),
	}
	return serialize(t, &eth, &arp)
}

// arpReplyTo builds the reply a neighbor would send to interface A.
func arpReplyTo(t *testing.T, senderMAC addr.MAC, senderIP netip.Addr) []byte {
	return arpFrame(t, layers.ARPReply, senderMAC, senderIP, macA, macA, ipA)
}

func ipv4Frame(t *testing.T, srcMAC, dstMAC addr.MAC, dgram netif.Datagram) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeIPv4,
	}
	hdr := dgram.Header
	return serialize(t, &eth, &hdr, gopacket.Payload(dgram.Payload))
}

func drainOutbound(t *testing.T, ifc *netif.Interface) []gopacket.Packet {
	t.Helper()
	var out []gopacket.Packet
	for {
		raw, ok := ifc.PollOutbound()
		if !ok {
			return out
		}
		pkt := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.Default)
		require.Nil(t, pkt.ErrorLayer())
		out = append(out, pkt)
	}
}

func ethLayer(t *testing.T, pkt gopacket.Packet) *layers.Ethernet {
	t.Helper()
	eth, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	return eth
}

func arpLayer(t *testing.T, pkt gopacket.Packet) *layers.ARP {
	t.Helper()
	arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok, "expected an ARP payload")
	return arp
}

func ipLayer(t *testing.T, pkt gopacket.Packet) *layers.IPv4 {
	t.Helper()
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok, "expected an IPv4 payload")
	return ip
}

func TestSendUnresolved(t *testing.T) {
	ifc := newIface(t)
	ifc.Send(datagram(ipB, "hello"), ipB)

	out := drainOutbound(t, ifc)
	require.Len(t, out, 1, "exactly one ARP request expected")
	eth := ethLayer(t, out[0])
	assert.Equal(t, addr.BroadcastMAC.HardwareAddr(), eth.DstMAC)
	arp := arpLayer(t, out[0])
	assert.Equal(t, uint16(layers.ARPRequest), arp.Operation)
	assert.Equal(t, ipB.AsSlice(), []byte(arp.DstProtAddress))
	assert.Equal(t, ipA.AsSlice(), []byte(arp.SourceProtAddress))
}

func TestRetryThrottling(t *testing.T) {
	ifc := newIface(t)
	ifc.Send(datagram(ipB, "d1"), ipB)
	require.Len(t, drainOutbound(t, ifc), 1)

	t.Run("repeated sends produce no extra request", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			ifc.Send(datagram(ipB, "more"), ipB)
		}
		assert.Empty(t, drainOutbound(t, ifc))
	})

	t.Run("no retry before the interval elapses", func(t *testing.T) {
		ifc.Tick(netif.RetryInterval - time.Millisecond)
		assert.Empty(t, drainOutbound(t, ifc))
	})

	t.Run("exactly one retry once the interval elapses", func(t *testing.T) {
		ifc.Tick(time.Millisecond)
		out := drainOutbound(t, ifc)
		require.Len(t, out, 1)
		assert.Equal(t, uint16(layers.ARPRequest), arpLayer(t, out[0]).Operation)

		// The retry refreshed the request timestamp, so no further
		// retransmission happens within the next window.
		ifc.Tick(netif.RetryInterval - time.Millisecond)
		assert.Empty(t, drainOutbound(t, ifc))
	})
}

func TestResolutionFlushOrdering(t *testing.T) {
	ifc := newIface(t)
	ifc.Send(datagram(ipB, "d1"), ipB)
	ifc.Send(datagram(ipB, "d2"), ipB)
	ifc.Send(datagram(ipB, "d3"), ipB)
	require.Len(t, drainOutbound(t, ifc), 1) // the single ARP request

	ifc.Receive(arpReplyTo(t, macB, ipB))

	out := drainOutbound(t, ifc)
	require.Len(t, out, 3)
	for i, want := range []string{"d1", "d2", "d3"} {
		eth := ethLayer(t, out[i])
		assert.Equal(t, macB.HardwareAddr(), eth.DstMAC)
		assert.Equal(t, macA.HardwareAddr(), eth.SrcMAC)
		ip := ipLayer(t, out[i])
		assert.Equal(t, []byte(want), ip.Payload, "flush must preserve order")
	}
}

func TestResolutionLeavesOtherNextHopsQueued(t *testing.T) {
	ifc := newIface(t)
	ifc.Send(datagram(ipB, "to-b"), ipB)
	ifc.Send(datagram(ipC, "to-c"), ipC)
	require.Len(t, drainOutbound(t, ifc), 2) // one request per next hop

	ifc.Receive(arpReplyTo(t, macB, ipB))
	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	assert.Equal(t, []byte("to-b"), ipLayer(t, out[0]).Payload)

	// The datagram for the other next hop is still waiting.
	ifc.Receive(arpReplyTo(t, macC, ipC))
	out = drainOutbound(t, ifc)
	require.Len(t, out, 1)
	assert.Equal(t, []byte("to-c"), ipLayer(t, out[0]).Payload)
}

func TestCacheHit(t *testing.T) {
	ifc := newIface(t)
	ifc.Receive(arpReplyTo(t, macB, ipB))
	require.Empty(t, drainOutbound(t, ifc))

	ifc.Send(datagram(ipB, "fast path"), ipB)
	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	assert.Equal(t, macB.HardwareAddr(), ethLayer(t, out[0]).DstMAC)
}

func TestCacheExpiry(t *testing.T) {
	ifc := newIface(t)
	ifc.Receive(arpReplyTo(t, macB, ipB))

	t.Run("entry survives up to the TTL", func(t *testing.T) {
		ifc.Tick(netif.CacheTTL)
		ifc.Send(datagram(ipB, "x"), ipB)
		out := drainOutbound(t, ifc)
		require.Len(t, out, 1)
		assert.NotNil(t, out[0].Layer(layers.LayerTypeIPv4))
	})

	t.Run("stale entry triggers a fresh request", func(t *testing.T) {
		ifc.Tick(time.Millisecond)
		ifc.Send(datagram(ipB, "y"), ipB)
		out := drainOutbound(t, ifc)
		require.Len(t, out, 1)
		assert.Equal(t, uint16(layers.ARPRequest), arpLayer(t, out[0]).Operation)
	})
}

func TestGratuitousLearning(t *testing.T) {
	// A request from B for some third address still teaches us B's mapping.
	ifc := newIface(t)
	ifc.Receive(arpFrame(t, layers.ARPRequest, macB, ipB, addr.MAC{}, addr.BroadcastMAC, ipC))
	require.Empty(t, drainOutbound(t, ifc), "request was not for us, no reply")

	ifc.Send(datagram(ipB, "known"), ipB)
	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	assert.Equal(t, macB.HardwareAddr(), ethLayer(t, out[0]).DstMAC)
}

func TestARPReplyGeneration(t *testing.T) {
	ifc := newIface(t)
	ifc.Receive(arpFrame(t, layers.ARPRequest, macB, ipB, addr.MAC{}, addr.BroadcastMAC, ipA))

	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	eth := ethLayer(t, out[0])
	assert.Equal(t, macB.HardwareAddr(), eth.DstMAC, "reply is unicast to the requester")
	arp := arpLayer(t, out[0])
	assert.Equal(t, uint16(layers.ARPReply), arp.Operation)
	assert.Equal(t, ipA.AsSlice(), []byte(arp.SourceProtAddress))
	assert.Equal(t, macA.HardwareAddr(), net.HardwareAddr(arp.SourceHwAddress))
	assert.Equal(t, ipB.AsSlice(), []byte(arp.DstProtAddress))
}

func TestReceiveIPv4(t *testing.T) {
	ifc := newIface(t)

	t.Run("datagrams surface in arrival order", func(t *testing.T) {
		ifc.Receive(ipv4Frame(t, macB, macA, datagram(ipA, "first")))
		ifc.Receive(ipv4Frame(t, macB, macA, datagram(ipA, "second")))

		d, ok := ifc.PollInbound()
		require.True(t, ok)
		assert.Equal(t, []byte("first"), d.Payload)
		d, ok = ifc.PollInbound()
		require.True(t, ok)
		assert.Equal(t, []byte("second"), d.Payload)
		_, ok = ifc.PollInbound()
		assert.False(t, ok)
	})

	t.Run("frames for other interfaces are ignored", func(t *testing.T) {
		ifc.Receive(ipv4Frame(t, macB, macC, datagram(ipA, "not ours")))
		_, ok := ifc.PollInbound()
		assert.False(t, ok)
	})

	t.Run("malformed payload is dropped silently", func(t *testing.T) {
		eth := layers.Ethernet{
			SrcMAC:       macB.HardwareAddr(),
			DstMAC:       macA.HardwareAddr(),
			EthernetType: layers.EthernetTypeIPv4,
		}
		frame := serialize(t, &eth, gopacket.Payload([]byte{0x45, 0x00}))
		ifc.Receive(frame)
		_, ok := ifc.PollInbound()
		assert.False(t, ok)
	})
}

func TestReceiveIgnoresForeignARP(t *testing.T) {
	// A unicast ARP frame addressed to a different interface must not
	// teach the cache.
	ifc := newIface(t)
	ifc.Receive(arpFrame(t, layers.ARPReply, macB, ipB, macC, macC, ipC))
	require.Empty(t, drainOutbound(t, ifc))

	ifc.Send(datagram(ipB, "z"), ipB)
	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(layers.ARPRequest), arpLayer(t, out[0]).Operation)
}

func TestStaticNeighbor(t *testing.T) {
	ifc := newIface(t)
	ifc.AddStaticNeighbor(ipB, macB)

	t.Run("does not expire", func(t *testing.T) {
		ifc.Tick(10 * netif.CacheTTL)
		ifc.Send(datagram(ipB, "pinned"), ipB)
		out := drainOutbound(t, ifc)
		require.Len(t, out, 1)
		assert.Equal(t, macB.HardwareAddr(), ethLayer(t, out[0]).DstMAC)
	})

	t.Run("is not overwritten by ARP traffic", func(t *testing.T) {
		ifc.Receive(arpReplyTo(t, macC, ipB))
		ifc.Send(datagram(ipB, "still pinned"), ipB)
		out := drainOutbound(t, ifc)
		require.Len(t, out, 1)
		assert.Equal(t, macB.HardwareAddr(), ethLayer(t, out[0]).DstMAC)
	})
}

func TestAnnounce(t *testing.T) {
	ifc := newIface(t)
	ifc.Announce()

	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	eth := ethLayer(t, out[0])
	assert.Equal(t, addr.BroadcastMAC.HardwareAddr(), eth.DstMAC)
	arp := arpLayer(t, out[0])
	assert.Equal(t, uint16(layers.ARPRequest), arp.Operation)
	assert.Equal(t, ipA.AsSlice(), []byte(arp.SourceProtAddress))
	assert.Equal(t, ipA.AsSlice(), []byte(arp.DstProtAddress))
}

// TestEndToEnd walks the scenario from the interface's doc: an unresolved
// send produces a single broadcast request, and the reply releases the
// original datagram addressed to the freshly learned neighbor.
func TestEndToEnd(t *testing.T) {
	ifc := netif.New(t.Name(), macA, ipA)
	ifc.Send(datagram(ipB, "payload"), ipB)

	out := drainOutbound(t, ifc)
	require.Len(t, out, 1)
	eth := ethLayer(t, out[0])
	assert.Equal(t, addr.BroadcastMAC.HardwareAddr(), eth.DstMAC)
	assert.Equal(t, uint16(layers.ARPRequest), arpLayer(t, out[0]).Operation)

	ifc.Receive(arpReplyTo(t, macB, ipB))

	out = drainOutbound(t, ifc)
	require.Len(t, out, 1)
	eth = ethLayer(t, out[0])
	assert.Equal(t, macB.HardwareAddr(), eth.DstMAC)
	assert.Equal(t, macA.HardwareAddr(), eth.SrcMAC)
	assert.Equal(t, []byte("payload"), ipLayer(t, out[0]).Payload)
}
