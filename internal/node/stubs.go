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

package node

import (
	"context"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
)

// NopWifiDriver logs connect/disconnect intents without touching any real
// radio. WiFi association is a peripheral hardware integration out of
// scope for this core; this is the reference
// collaborator used until a platform-specific driver is wired in, in the
// same spirit as renderer.NopRenderer.
type NopWifiDriver struct {
	mu        sync.Mutex
	connected bool
}

func (d *NopWifiDriver) Connect(ssid, pass string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	log.Infof("netsup: (stub) connecting wifi to %q", ssid)
	d.connected = true
	return nil
}

func (d *NopWifiDriver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	log.Info("netsup: (stub) disconnecting wifi")
	d.connected = false
	return nil
}

func (d *NopWifiDriver) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// IfaceLinkChecker reports ethernet link state from a named network
// interface's OS-reported flags.
type IfaceLinkChecker struct {
	Name string
}

func (c *IfaceLinkChecker) Connected() bool {
	iface, err := net.InterfaceByName(c.Name)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagRunning != 0
}

// NopRadioStarter logs that the peer radio would be brought up. Actual
// ESPNow radio bring-up is hardware-specific and out of scope.
type NopRadioStarter struct{}

func (NopRadioStarter) Start() error {
	log.Info("netsup: (stub) starting peer radio")
	return nil
}

// NopCaptivePortal logs that the captive configuration portal would be
// shown and blocks until canceled; the portal itself is an out-of-scope
// external collaborator.
type NopCaptivePortal struct{}

func (NopCaptivePortal) Start(ctx context.Context) error {
	log.Warn("netsup: no usable network configured, captive portal would start here")
	<-ctx.Done()
	return nil
}
