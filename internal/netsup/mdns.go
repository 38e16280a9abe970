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

package netsup

import (
	"sync"

	"github.com/hashicorp/mdns"
)

// MDNSAdvertiser publishes the junctionrelay service advertisement over
// mDNS while any network is up.
type MDNSAdvertiser struct {
	Instance string
	Port     int

	mu     sync.Mutex
	server *mdns.Server
}

// NewMDNSAdvertiser builds an advertiser for the given instance name and
// TCP port.
func NewMDNSAdvertiser(instance string, port int) *MDNSAdvertiser {
	return &MDNSAdvertiser{Instance: instance, Port: port}
}

// Start publishes the service record. It is idempotent while already
// running.
func (a *MDNSAdvertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}

	info, err := mdns.NewMDNSService(a.Instance, "_junctionrelay._tcp", "", "", a.Port, nil, []string{"junctionrelay relay node"})
	if err != nil {
		return err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: info})
	if err != nil {
		return err
	}
	a.server = server
	return nil
}

// Stop withdraws the service advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}
