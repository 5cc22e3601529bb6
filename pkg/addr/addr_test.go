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

package addr_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/packetd/pkg/addr"
)

func TestParseMAC(t *testing.T) {
	m, err := addr.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, addr.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, m)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", m.String())

	_, err = addr.ParseMAC("not-a-mac")
	assert.Error(t, err)

	// EUI-64 parses as a hardware address but is not a MAC.
	_, err = addr.ParseMAC("02:00:5e:10:00:00:00:01")
	assert.Error(t, err)
}

func TestBroadcast(t *testing.T) {
	assert.True(t, addr.BroadcastMAC.IsBroadcast())
	assert.False(t, addr.MAC{}.IsBroadcast())
}

func TestIPv4Numeric(t *testing.T) {
	ip := netip.MustParseAddr("192.168.0.5")
	assert.Equal(t, uint32(0xc0a80005), addr.IPv4ToUint32(ip))
	assert.Equal(t, ip, addr.IPv4FromUint32(0xc0a80005))
}

func TestParseIPv4(t *testing.T) {
	ip, err := addr.ParseIPv4("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), ip)

	_, err = addr.ParseIPv4("::1")
	assert.Error(t, err)
	_, err = addr.ParseIPv4("10.0.0")
	assert.Error(t, err)
}

func TestIPv4FromSlice(t *testing.T) {
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), addr.IPv4FromSlice([]byte{10, 0, 0, 2}))
	assert.False(t, addr.IPv4FromSlice([]byte{10, 0}).IsValid())
}
