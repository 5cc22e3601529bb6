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

// Package control loads the router configuration and translates it into a
// running data plane.
package control

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/packetd/packetd/pkg/addr"
	"github.com/packetd/packetd/router"
	"github.com/packetd/packetd/router/netif"
)

var (
	errNoInterfaces  = errors.New("no interfaces configured")
	errDuplicateName = errors.New("duplicate interface name")
)

// Config is the on-disk router configuration.
type Config struct {
	// MetricsAddr is the address the prometheus endpoint listens on.
	// Empty disables the endpoint.
	MetricsAddr string `toml:"metrics_addr"`
	// LogLevel is one of "debug", "info" or "error".
	LogLevel   string            `toml:"log_level"`
	Interfaces []InterfaceConfig `toml:"interfaces"`
	Routes     []RouteConfig     `toml:"routes"`
}

// InterfaceConfig describes one network interface.
type InterfaceConfig struct {
	// Name identifies the interface in logs, metrics and route entries.
	Name string `toml:"name"`
	// Device is the TAP device the interface attaches to.
	Device string `toml:"device"`
	MAC    string `toml:"mac"`
	IP     string `toml:"ip"`
	// Neighbors pins static IP-to-MAC mappings that never expire.
	Neighbors []NeighborConfig `toml:"neighbors"`
}

// NeighborConfig is one static neighbor entry.
type NeighborConfig struct {
	IP  string `toml:"ip"`
	MAC string `toml:"mac"`
}

// RouteConfig describes one routing-table entry. NextHop is empty for
// directly attached networks.
type RouteConfig struct {
	Prefix    string `toml:"prefix"`
	NextHop   string `toml:"next_hop"`
	Interface string `toml:"interface"`
}

// Load reads and decodes the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Build validates the configuration and constructs the data plane with all
// interfaces, static neighbors and routes installed. The returned interface
// slice is in configuration order, matching the data-plane indexes.
func (cfg *Config) Build() (*router.DataPlane, []*netif.Interface, error) {
	if len(cfg.Interfaces) == 0 {
		return nil, nil, errNoInterfaces
	}
	dp := router.New()
	byName := make(map[string]int, len(cfg.Interfaces))
	interfaces := make([]*netif.Interface, 0, len(cfg.Interfaces))
	for _, ic := range cfg.Interfaces {
		if _, ok := byName[ic.Name]; ok {
			return nil, nil, fmt.Errorf("%w: %q", errDuplicateName, ic.Name)
		}
		mac, err := addr.ParseMAC(ic.MAC)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		ip, err := addr.ParseIPv4(ic.IP)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		ifc := netif.New(ic.Name, mac, ip)
		for _, nc := range ic.Neighbors {
			nip, err := addr.ParseIPv4(nc.IP)
			if err != nil {
				return nil, nil, fmt.Errorf("interface %q neighbor: %w", ic.Name, err)
			}
			nmac, err := addr.ParseMAC(nc.MAC)
			if err != nil {
				return nil, nil, fmt.Errorf("interface %q neighbor: %w", ic.Name, err)
			}
			ifc.AddStaticNeighbor(nip, nmac)
		}
		idx, err := dp.AddInterface(ifc)
		if err != nil {
			return nil, nil, err
		}
		byName[ic.Name] = idx
		interfaces = append(interfaces, ifc)
	}
	for _, rc := range cfg.Routes {
		prefix, err := netip.ParsePrefix(rc.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", rc.Prefix, err)
		}
		if !prefix.Addr().Is4() {
			return nil, nil, fmt.Errorf("route %q: not an IPv4 prefix", rc.Prefix)
		}
		var nextHop netip.Addr
		if rc.NextHop != "" {
			if nextHop, err = addr.ParseIPv4(rc.NextHop); err != nil {
				return nil, nil, fmt.Errorf("route %q: %w", rc.Prefix, err)
			}
		}
		idx, ok := byName[rc.Interface]
		if !ok {
			return nil, nil, fmt.Errorf("route %q: unknown interface %q", rc.Prefix, rc.Interface)
		}
		err = dp.AddRoute(prefix.Masked().Addr(), uint8(prefix.Bits()), nextHop, idx)
		if err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", rc.Prefix, err)
		}
	}
	return dp, interfaces, nil
}
