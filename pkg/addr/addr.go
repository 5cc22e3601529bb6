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

// Package addr contains the address value types shared by the dataplane:
// Ethernet hardware addresses and numeric IPv4 helpers.
package addr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// MAC is a 48-bit Ethernet hardware address. The zero value is the
// unspecified address.
type MAC [6]byte

// BroadcastMAC is the Ethernet broadcast address, ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var errBadMAC = errors.New("not a 48-bit hardware address")

// MACFromBytes converts a 6-byte slice to a MAC.
func MACFromBytes(b []byte) (MAC, error) {
	var m MAC
	if len(b) != 6 {
		return m, fmt.Errorf("%w: %d bytes", errBadMAC, len(b))
	}
	copy(m[:], b)
	return m, nil
}

// ParseMAC parses a textual hardware address in any form accepted by
// net.ParseMAC, as long as it is 48 bits wide.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, err
	}
	return MACFromBytes(hw)
}

// IsBroadcast reports whether m is the Ethernet broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// HardwareAddr returns m as a net.HardwareAddr for use with packet codecs.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

func (m MAC) String() string {
	return m.HardwareAddr().String()
}

var errNotIPv4 = errors.New("not an IPv4 address")

// ParseIPv4 parses a dotted-decimal IPv4 address. IPv6 input is rejected.
func ParseIPv4(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !ip.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s", errNotIPv4, s)
	}
	return ip, nil
}

// IPv4ToUint32 returns the 32-bit numeric form of an IPv4 address, in host
// byte order with the most significant byte first in the dotted form. This
// is the comparison key used by the routing table.
func IPv4ToUint32(ip netip.Addr) uint32 {
	b := ip.As4()
	return binary.BigEndian.Uint32(b[:])
}

// IPv4FromUint32 is the inverse of IPv4ToUint32.
func IPv4FromUint32(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// IPv4FromSlice converts a 4-byte slice (e.g. an ARP protocol address
// field) to a netip.Addr. Returns the zero Addr if the slice is not 4
// bytes long.
func IPv4FromSlice(b []byte) netip.Addr {
	if len(b) != 4 {
		return netip.Addr{}
	}
	ip, _ := netip.AddrFromSlice(b)
	return ip
}
