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

// Command packetd runs the userspace IPv4 router over TAP devices. It opens
// one TAP device per configured interface, feeds arrived frames into the
// dataplane, and drains frames the dataplane produces back onto the wire.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/packetd/packetd/pkg/log"
	"github.com/packetd/packetd/router"
	"github.com/packetd/packetd/router/control"
	"github.com/packetd/packetd/router/netif"
)

const (
	// bufSize bounds a single link frame; 9000 covers jumbo frames.
	bufSize = 9000
	// pollPeriod is how often the routing loop runs a scheduling pass.
	pollPeriod = 10 * time.Millisecond
)

func main() {
	var configPath string
	var metricsAddr string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "packetd",
		Short:         "Userspace IPv4 router over TAP devices",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := control.Load(configPath)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.MetricsAddr = metricsAddr
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := log.Setup(log.Config{Level: cfg.LogLevel}); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the TOML configuration (required)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address, overrides the config")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level, overrides the config")
	if err := cmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *control.Config) error {
	dp, interfaces, err := cfg.Build()
	if err != nil {
		return err
	}

	devices := make([]*tapDevice, len(interfaces))
	for i, ic := range cfg.Interfaces {
		dev, err := openTAP(ic.Device)
		if err != nil {
			return fmt.Errorf("interface %q: %w", ic.Name, err)
		}
		defer dev.Close()
		devices[i] = dev
		log.Info("Attached interface", "name", ic.Name, "device", dev.Name(),
			"mac", interfaces[i].MAC(), "ip", interfaces[i].IP())
	}

	// Let the neighbors know we are here.
	for _, ifc := range interfaces {
		ifc.Announce()
	}

	g, errCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer log.HandlePanic()
		<-errCtx.Done()
		// Closing the devices unblocks the readers.
		for _, dev := range devices {
			dev.Close()
		}
		return nil
	})

	for i := range interfaces {
		ifc, dev := interfaces[i], devices[i]
		g.Go(func() error {
			defer log.HandlePanic()
			return readFrames(errCtx, dev, ifc)
		})
	}

	g.Go(func() error {
		defer log.HandlePanic()
		return routeLoop(errCtx, dp, interfaces, devices)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return server.Close()
		})
		g.Go(func() error {
			defer log.HandlePanic()
			log.Info("Serving metrics", "addr", cfg.MetricsAddr)
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving metrics: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// readFrames feeds every frame arriving on dev into the interface. It
// returns when the device is closed.
func readFrames(ctx context.Context, dev *tapDevice, ifc *netif.Interface) error {
	buf := make([]byte, bufSize)
	for {
		n, err := dev.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading %s: %w", dev.Name(), err)
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		ifc.Receive(frame)
	}
}

// routeLoop is the driving loop: every pollPeriod it advances the logical
// clocks, runs one routing pass, and drains the outbound queues onto the
// wire.
func routeLoop(
	ctx context.Context,
	dp *router.DataPlane,
	interfaces []*netif.Interface,
	devices []*tapDevice,
) error {
	ticker := time.NewTicker(pollPeriod)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dp.Tick(now.Sub(last))
			last = now
			dp.Route()
			for i, ifc := range interfaces {
				for {
					frame, ok := ifc.PollOutbound()
					if !ok {
						break
					}
					if _, err := devices[i].Write(frame); err != nil {
						return fmt.Errorf("writing %s: %w", devices[i].Name(), err)
					}
				}
			}
		}
	}
}
