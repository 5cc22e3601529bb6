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
	"net/netip"

	"github.com/packetd/packetd/pkg/addr"
)

// route is one entry of the routing table. A route with an invalid (zero)
// nextHop denotes a directly attached network: the datagram's own
// destination is the link-layer resolution target.
type route struct {
	prefix    uint32
	prefixLen uint8
	nextHop   netip.Addr
	ifIndex   int
}

// routingTable is an append-only list of prefix routes. The table is small
// in this design; lookups are a linear scan in insertion order, which keeps
// the tie-break rule trivial.
type routingTable struct {
	routes []route
}

func (t *routingTable) add(r route) {
	t.routes = append(t.routes, r)
}

// lookup returns the route whose prefix matches dst with the greatest
// prefix length. When several matches share the maximal length the most
// recently added one wins, hence the >= comparison on a scan in insertion
// order. The second return value is false if no route matches.
func (t *routingTable) lookup(dst netip.Addr) (route, bool) {
	key := addr.IPv4ToUint32(dst)
	var best route
	bestLen := -1
	for _, r := range t.routes {
		mask := prefixMask(r.prefixLen)
		if key&mask == r.prefix && int(r.prefixLen) >= bestLen {
			best = r
			bestLen = int(r.prefixLen)
		}
	}
	if bestLen < 0 {
		return route{}, false
	}
	return best, true
}

// prefixMask returns a mask with the top n bits set. n must be <= 32;
// n == 0 yields the all-zero mask of the default route.
func prefixMask(n uint8) uint32 {
	if n == 0 {
		return 0
	}
	return ^uint32(0) << (32 - n)
}
