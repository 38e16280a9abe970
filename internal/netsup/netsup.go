/*
Copyright (c) The JunctionRelay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package netsup implements the network supervisor: it picks the
primary transport from the persisted connection mode, runs a debounced
network-change monitor, drives the mDNS advertisement lifecycle, and
applies the boot-loop safety heuristic.
*/
package netsup

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Mode is the persisted Connection Mode.
type Mode string

const (
	ModeWifi     Mode = "wifi"
	ModeEthernet Mode = "ethernet"
	ModeESPNow   Mode = "espnow"
	ModeGateway  Mode = "gateway"
	ModeEmpty    Mode = ""
)

// monitorInterval is the network-change debounce window.
const monitorInterval = 2 * time.Second

// bootWindow and bootMaxGap implement the boot-loop heuristic: more
// than two init entries within the first 30s of uptime, each under 10s
// apart, forces the captive portal.
const (
	bootWindow  = 30 * time.Second
	bootMaxGap  = 10 * time.Second
)

// WifiDriver drives the WiFi radio up or down.
type WifiDriver interface {
	Connect(ssid, pass string) error
	Disconnect() error
	Connected() bool
}

// LinkChecker reports whether a wired link is currently up.
type LinkChecker interface {
	Connected() bool
}

// RadioStarter brings up the peer radio (ESPNow) path.
type RadioStarter interface {
	Start() error
}

// CaptivePortal takes over device setup when no usable network is
// configured. Start blocks until ctx is canceled.
type CaptivePortal interface {
	Start(ctx context.Context) error
}

// Advertiser publishes/withdraws the mDNS service advertisement.
type Advertiser interface {
	Start() error
	Stop() error
}

// EventSink receives (network type, connected) transitions.
type EventSink func(networkType string, connected bool)

// BootGuard tracks init re-entries relative to process start and decides
// whether the boot-loop heuristic should force the captive portal.
type BootGuard struct {
	mu      sync.Mutex
	start   time.Time
	entries []time.Time
	now     func() time.Time
}

// NewBootGuard returns a guard anchored at the current time.
func NewBootGuard() *BootGuard {
	return &BootGuard{start: time.Now(), now: time.Now}
}

// RecordEntry registers one supervisor init and reports whether the
// boot-loop heuristic fired: more than two entries inside the first 30s
// of uptime, with less than 10s between each consecutive pair.
func (b *BootGuard) RecordEntry() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.start) > bootWindow {
		return false
	}

	b.entries = append(b.entries, now)
	if len(b.entries) <= 2 {
		return false
	}
	for i := len(b.entries) - 1; i > 0; i-- {
		if b.entries[i].Sub(b.entries[i-1]) >= bootMaxGap {
			return false
		}
	}
	return true
}

// Supervisor owns primary transport selection and the change monitor.
type Supervisor struct {
	Wifi      WifiDriver
	Ethernet  LinkChecker
	Radio     RadioStarter
	Captive   CaptivePortal
	Advertise Advertiser
	OnEvent   EventSink
	Boot      *BootGuard

	now func() time.Time
}

// New constructs a Supervisor with its own BootGuard anchored at
// construction time.
func New(wifi WifiDriver, ethernet LinkChecker, radio RadioStarter, captive CaptivePortal, advertise Advertiser, onEvent EventSink) *Supervisor {
	return &Supervisor{
		Wifi: wifi, Ethernet: ethernet, Radio: radio,
		Captive: captive, Advertise: advertise, OnEvent: onEvent,
		Boot: NewBootGuard(),
		now:  time.Now,
	}
}

// Run selects the primary transport per mode and blocks until ctx is
// canceled or a fatal error occurs. Each call is recorded against the
// BootGuard; if the boot-loop heuristic fires, the captive portal is
// forced regardless of mode.
func (s *Supervisor) Run(ctx context.Context, mode Mode, ssid, pass string) error {
	wifiCreds := ssid != ""

	if s.Boot != nil && s.Boot.RecordEntry() {
		log.Warn("netsup: boot-loop heuristic fired, forcing captive portal")
		return s.Captive.Start(ctx)
	}

	switch mode {
	case ModeWifi, ModeEmpty:
		if !wifiCreds {
			log.Info("netsup: no WiFi credentials, starting captive portal")
			return s.Captive.Start(ctx)
		}
		return s.runIPMode(ctx, func(g *errgroup.Group) {
			g.Go(func() error { return s.runWifiPrimary(ctx, ssid, pass) })
		})

	case ModeEthernet:
		return s.runIPMode(ctx, func(g *errgroup.Group) {
			if wifiCreds {
				g.Go(func() error { s.runWifiBackup(ctx, ssid, pass); return nil })
			}
		})

	case ModeESPNow:
		if err := s.Radio.Start(); err != nil {
			return fmt.Errorf("netsup: starting radio: %w", err)
		}
		log.Info("netsup: espnow mode, no IP networking or mDNS")
		<-ctx.Done()
		return nil

	case ModeGateway:
		if err := s.Radio.Start(); err != nil {
			return fmt.Errorf("netsup: starting radio: %w", err)
		}
		return s.runIPMode(ctx, func(g *errgroup.Group) {
			if wifiCreds {
				g.Go(func() error { s.runWifiBackup(ctx, ssid, pass); return nil })
			}
		})

	default:
		return fmt.Errorf("netsup: unknown connection mode %q", mode)
	}
}

func (s *Supervisor) runIPMode(ctx context.Context, extra func(*errgroup.Group)) error {
	g, gctx := errgroup.WithContext(ctx)
	extra(g)
	g.Go(func() error {
		s.monitor(gctx)
		return nil
	})
	return g.Wait()
}

func (s *Supervisor) runWifiPrimary(ctx context.Context, ssid, pass string) error {
	if err := s.Wifi.Connect(ssid, pass); err != nil {
		return fmt.Errorf("netsup: wifi connect: %w", err)
	}
	<-ctx.Done()
	_ = s.Wifi.Disconnect()
	return nil
}

// runWifiBackup connects WiFi only while ethernet has been continuously
// down for at least one monitor interval, and disconnects it as soon as
// ethernet returns.
func (s *Supervisor) runWifiBackup(ctx context.Context, ssid, pass string) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var downSince time.Time
	for {
		select {
		case <-ctx.Done():
			if s.Wifi.Connected() {
				_ = s.Wifi.Disconnect()
			}
			return
		case <-ticker.C:
			if s.Ethernet.Connected() {
				downSince = time.Time{}
				if s.Wifi.Connected() {
					_ = s.Wifi.Disconnect()
				}
				continue
			}
			now := s.now()
			if downSince.IsZero() {
				downSince = now
				continue
			}
			if now.Sub(downSince) >= monitorInterval && !s.Wifi.Connected() {
				if err := s.Wifi.Connect(ssid, pass); err != nil {
					log.Warnf("netsup: backup wifi connect failed: %v", err)
				}
			}
		}
	}
}

func (s *Supervisor) anyNetworkUp() (wifiUp, ethUp bool) {
	if s.Wifi != nil {
		wifiUp = s.Wifi.Connected()
	}
	if s.Ethernet != nil {
		ethUp = s.Ethernet.Connected()
	}
	return
}

// monitor polls link state and emits debounced (type, connected) events,
// driving the mDNS advertisement lifecycle from the same debounced state.
func (s *Supervisor) monitor(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var pendingUp bool
	var pendingSince time.Time
	var emittedUp bool
	haveEmitted := false
	advertised := false

	for {
		select {
		case <-ctx.Done():
			if advertised && s.Advertise != nil {
				_ = s.Advertise.Stop()
			}
			return
		case <-ticker.C:
			wifiUp, ethUp := s.anyNetworkUp()
			up := wifiUp || ethUp
			now := s.now()

			if !haveEmitted {
				pendingUp, pendingSince = up, now
				emittedUp, haveEmitted = up, true
				s.emit(wifiUp, ethUp)
				advertised = s.syncAdvertisement(up, advertised)
				continue
			}

			if up != pendingUp {
				pendingUp, pendingSince = up, now
			}
			if pendingUp != emittedUp && now.Sub(pendingSince) >= monitorInterval {
				emittedUp = pendingUp
				s.emit(wifiUp, ethUp)
				advertised = s.syncAdvertisement(up, advertised)
			}
		}
	}
}

func (s *Supervisor) emit(wifiUp, ethUp bool) {
	if s.OnEvent == nil {
		return
	}
	s.OnEvent("wifi", wifiUp)
	s.OnEvent("ethernet", ethUp)
}

func (s *Supervisor) syncAdvertisement(up, currentlyAdvertised bool) bool {
	if s.Advertise == nil {
		return currentlyAdvertised
	}
	if up && !currentlyAdvertised {
		if err := s.Advertise.Start(); err != nil {
			log.Warnf("netsup: mDNS advertise start failed: %v", err)
			return currentlyAdvertised
		}
		return true
	}
	if !up && currentlyAdvertised {
		_ = s.Advertise.Stop()
		return false
	}
	return currentlyAdvertised
}
