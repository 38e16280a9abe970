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
Package status implements the status aggregator: it coalesces
state from the network supervisor, uplink session, peer radio manager and
broker client into a single Connection Status snapshot, published to
subscribers and exported both as JSON and as Prometheus gauges.
*/
package status

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the Connection Status aggregate.
type Snapshot struct {
	PeerRadioActive  bool   `json:"peerRadioActive"`
	WifiConnected    bool   `json:"wifiConnected"`
	BrokerConnected  bool   `json:"brokerConnected"`
	EthernetConnected bool  `json:"ethernetConnected"`
	UplinkConnected  bool   `json:"uplinkConnected"`
	IP               string `json:"ip"`
	MAC              string `json:"mac"`
	ActiveNetworkType string `json:"activeNetworkType"`
	BackendServerIP  string `json:"backendServerIp"`
	EthernetIP       string `json:"ethernetIp,omitempty"`
	EthernetMAC      string `json:"ethernetMac,omitempty"`
	PrimaryProtocol  string `json:"primaryProtocol"`
}

// Subscriber is invoked with the fresh snapshot whenever any observed
// field changes.
type Subscriber func(Snapshot)

// Aggregator owns the current snapshot and the list of subscribers.
type Aggregator struct {
	mu   sync.RWMutex
	cur  Snapshot
	subs []Subscriber

	queueDepth   *prometheus.GaugeVec
	queueDropped *prometheus.GaugeVec
	peerCount    prometheus.Gauge
	peerActive   prometheus.Gauge
	connected    *prometheus.GaugeVec
}

// New returns an Aggregator with its metrics registered against registry.
// registry may be nil, in which case Prometheus export is skipped.
func New(registry *prometheus.Registry) *Aggregator {
	a := &Aggregator{
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaycore_queue_depth",
			Help: "current number of queued documents",
		}, []string{"queue"}),
		queueDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaycore_queue_dropped_total",
			Help: "documents dropped because the queue was full",
		}, []string{"queue"}),
		peerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaycore_peer_count",
			Help: "peers currently known to the radio manager",
		}),
		peerActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaycore_peer_active_count",
			Help: "peers considered active (seen within the liveness timeout)",
		}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relaycore_connected",
			Help: "1 if the named channel is connected, 0 otherwise",
		}, []string{"channel"}),
	}

	if registry != nil {
		registry.MustRegister(a.queueDepth, a.queueDropped, a.peerCount, a.peerActive, a.connected)
	}
	return a
}

// Subscribe registers a callback invoked on every change. Additional
// calls append more subscribers, all of which are notified.
func (a *Aggregator) Subscribe(sub Subscriber) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, sub)
}

// Current returns the current snapshot synchronously.
func (a *Aggregator) Current() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cur
}

// Update replaces the snapshot and notifies subscribers iff it differs
// from the previous one.
func (a *Aggregator) Update(next Snapshot) {
	a.mu.Lock()
	changed := next != a.cur
	a.cur = next
	subs := append([]Subscriber(nil), a.subs...)
	a.mu.Unlock()

	a.connected.WithLabelValues("wifi").Set(boolToFloat(next.WifiConnected))
	a.connected.WithLabelValues("ethernet").Set(boolToFloat(next.EthernetConnected))
	a.connected.WithLabelValues("broker").Set(boolToFloat(next.BrokerConnected))
	a.connected.WithLabelValues("uplink").Set(boolToFloat(next.UplinkConnected))
	a.connected.WithLabelValues("peer_radio").Set(boolToFloat(next.PeerRadioActive))

	if !changed {
		return
	}
	for _, sub := range subs {
		sub(next)
	}
}

// SetQueueStats feeds queue depth/drop gauges; called periodically by the
// owner of the bounded queues.
func (a *Aggregator) SetQueueStats(queueName string, depth int, dropped int64) {
	a.queueDepth.WithLabelValues(queueName).Set(float64(depth))
	a.queueDropped.WithLabelValues(queueName).Set(float64(dropped))
}

// SetPeerStats feeds peer-table gauges.
func (a *Aggregator) SetPeerStats(total, active int) {
	a.peerCount.Set(float64(total))
	a.peerActive.Set(float64(active))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
