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

import "github.com/junctionrelay/relaycore/internal/status"

// statusNetworkInfo adapts the status aggregator's Connection Status
// snapshot to uplink.NetworkInfo, so outbound uplink frames embed the same
// IP/connection-type facts the admin façade reports.
type statusNetworkInfo struct {
	status *status.Aggregator
}

func (n *statusNetworkInfo) IPAddress() string {
	return n.status.Current().IP
}

func (n *statusNetworkInfo) ConnectionType() string {
	return n.status.Current().ActiveNetworkType
}

// WifiRSSI is not tracked by the status snapshot; no platform-specific
// signal-strength source is wired in for this core.
func (n *statusNetworkInfo) WifiRSSI() (int, bool) {
	return 0, false
}

// statusNetworkChecker adapts the status aggregator to broker.NetworkChecker:
// the broker channel waits for any IP network, WiFi or ethernet.
type statusNetworkChecker struct {
	status *status.Aggregator
}

func (n *statusNetworkChecker) NetworkUp() bool {
	cur := n.status.Current()
	return cur.WifiConnected || cur.EthernetConnected
}
