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
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/packetd/packetd/pkg/addr"
)

var seropts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

var zeroMAC = addr.MAC{}

// Datagram is a decoded IPv4 datagram: the parsed header plus the transport
// payload. The header is mutated in place by the router (TTL decrement); the
// checksum is recomputed whenever the datagram is framed for the wire.
type Datagram struct {
	Header  layers.IPv4
	Payload []byte
}

// Dst returns the destination address of the datagram, or the zero Addr if
// the header does not carry a valid IPv4 destination.
func (d Datagram) Dst() netip.Addr {
	return addr.IPv4FromSlice(d.Header.DstIP.To4())
}

// buildIPv4Frame frames the datagram for transmission. The IPv4 header
// checksum is recomputed during serialization, so a datagram whose TTL was
// just decremented comes out with a valid header.
func buildIPv4Frame(srcMAC, dstMAC addr.MAC, dgram Datagram) []byte {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeIPv4,
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, seropts, &eth, &dgram.Header,
		gopacket.Payload(dgram.Payload))
	if err != nil {
		// The only possible reason for this is a malformed header we built.
		panic("cannot serialize IPv4 frame: " + err.Error())
	}
	return buf.Bytes()
}

// buildARPRequest builds a broadcast ARP request asking for targetIP.
// Asking for the interface's own address yields a gratuitous announcement.
func buildARPRequest(srcMAC addr.MAC, srcIP, targetIP netip.Addr) []byte {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       addr.BroadcastMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC.HardwareAddr(),
		SourceProtAddress: srcIP.AsSlice(),
		DstHwAddress:      zeroMAC.HardwareAddr(),
		DstProtAddress:    targetIP.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, seropts, &eth, &arp); err != nil {
		panic("cannot serialize ARP request: " + err.Error())
	}
	return buf.Bytes()
}

// buildARPReply builds a unicast ARP reply telling dstIP/dstMAC that srcIP
// is at srcMAC.
func buildARPReply(srcMAC, dstMAC addr.MAC, srcIP, dstIP netip.Addr) []byte {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC.HardwareAddr(),
		DstMAC:       dstMAC.HardwareAddr(),
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   srcMAC.HardwareAddr(),
		SourceProtAddress: srcIP.AsSlice(),
		DstHwAddress:      dstMAC.HardwareAddr(),
		DstProtAddress:    dstIP.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, seropts, &eth, &arp); err != nil {
		panic("cannot serialize ARP reply: " + err.Error())
	}
	return buf.Bytes()
}

// decodeIPv4 parses an IPv4 payload carried by an Ethernet frame. The second
// return value is false if the payload is malformed.
func decodeIPv4(payload []byte) (Datagram, bool) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return Datagram{}, false
	}
	return Datagram{Header: ip, Payload: ip.Payload}, true
}

// decodeARP parses an Ethernet-over-IPv4 ARP payload. Anything else,
// including ARP for other address families, is reported as malformed.
func decodeARP(payload []byte) (layers.ARP, bool) {
	var arp layers.ARP
	if err := arp.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return layers.ARP{}, false
	}
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return layers.ARP{}, false
	}
	return arp, true
}
