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

package main

import (
	"fmt"
	"sync"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"

	"github.com/packetd/packetd/pkg/log"
)

// tapDevice wraps a TAP device. Close is idempotent so that the shutdown
// path and deferred cleanup can both call it.
type tapDevice struct {
	ifce      *water.Interface
	closeOnce sync.Once
	closeErr  error
}

// openTAP creates (or opens) the named TAP device and sets its link state
// to up.
func openTAP(name string) (*tapDevice, error) {
	ifce, err := water.New(water.Config{
		DeviceType:             water.TAP,
		PlatformSpecificParams: water.PlatformSpecificParams{Name: name},
	})
	if err != nil {
		return nil, fmt.Errorf("opening TAP device %q: %w", name, err)
	}
	log.Debug("Created TAP device", "name", ifce.Name())

	link, err := netlink.LinkByName(ifce.Name())
	if err != nil {
		ifce.Close()
		return nil, fmt.Errorf("looking up link %q: %w", ifce.Name(), err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		ifce.Close()
		return nil, fmt.Errorf("bringing up link %q: %w", ifce.Name(), err)
	}
	return &tapDevice{ifce: ifce}, nil
}

func (d *tapDevice) Name() string {
	return d.ifce.Name()
}

func (d *tapDevice) Read(p []byte) (int, error) {
	return d.ifce.Read(p)
}

func (d *tapDevice) Write(p []byte) (int, error) {
	return d.ifce.Write(p)
}

func (d *tapDevice) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.ifce.Close()
	})
	return d.closeErr
}
