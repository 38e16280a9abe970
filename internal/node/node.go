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
Package node wires the component graph into one Node
instance and drives its execution contexts with an
errgroup.Group, matching fbclock/daemon's supervision style: Node.Run
returns when the group's context is canceled or any goroutine returns a
fatal error.
*/
package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/junctionrelay/relaycore/internal/admin"
	"github.com/junctionrelay/relaycore/internal/broker"
	"github.com/junctionrelay/relaycore/internal/config"
	"github.com/junctionrelay/relaycore/internal/dispatch"
	"github.com/junctionrelay/relaycore/internal/envelope"
	"github.com/junctionrelay/relaycore/internal/frame"
	"github.com/junctionrelay/relaycore/internal/netsup"
	"github.com/junctionrelay/relaycore/internal/peer"
	"github.com/junctionrelay/relaycore/internal/prefs"
	"github.com/junctionrelay/relaycore/internal/queue"
	"github.com/junctionrelay/relaycore/internal/renderer"
	"github.com/junctionrelay/relaycore/internal/status"
	"github.com/junctionrelay/relaycore/internal/transport"
	"github.com/junctionrelay/relaycore/internal/uplink"
)

const (
	sensorQueueCapacity = 30
	configQueueCapacity = 3
	statsPushInterval   = 5 * time.Second
)

// Node owns every long-running component of the core and the bounded
// queues and peer table shared between them.
type Node struct {
	Config config.NodeConfig
	Prefs  *prefs.Store

	Sensor *queue.Queue[envelope.Document]
	Queue  *queue.Queue[envelope.Document] // config queue
	Peers  *peer.Manager

	// PrimaryProtocol is the transport resolved from ConnMode at
	// bootstrap; read-only thereafter until a restart re-resolves it.
	PrimaryProtocol config.PrimaryProtocol

	Dispatcher   *envelope.Dispatcher
	SensorWorker *dispatch.SensorWorker
	ConfigWorker *dispatch.ConfigWorker
	ConfigState  *dispatch.ConfigState

	Status     *status.Aggregator
	Metrics    *prometheus.Registry
	Supervisor *netsup.Supervisor
	Broker     *broker.Client
	Uplink     *uplink.Session
	Admin      *admin.Server

	Serial *transport.Serial

	AdminAddr string
}

// Bootstrap constructs the full component graph from a NodeConfig and a
// preferences store, with explicit constructor injection throughout.
func Bootstrap(cfg config.NodeConfig, prefStore *prefs.Store, rend renderer.Renderer, radioDriver peer.Driver) (*Node, error) {
	settings := prefStore.Snapshot()

	n := &Node{
		Config: cfg,
		Prefs:  prefStore,
		Sensor: queue.New[envelope.Document](sensorQueueCapacity),
		Queue:  queue.New[envelope.Document](configQueueCapacity),
	}

	n.ConfigState = dispatch.NewConfigState()
	n.PrimaryProtocol = config.ResolvePrimaryProtocol(settings.ConnMode)
	n.Metrics = prometheus.NewRegistry()
	n.Status = status.New(n.Metrics)

	if radioDriver == nil {
		radioDriver = noopRadioDriver{}
	}
	radioParser := frame.NewParser()
	n.Peers = peer.NewManager(radioDriver, func(payload []byte) {
		for _, f := range radioParser.Feed(payload) {
			n.ingest(f, nil)
		}
	})

	restart := ProcessRestarter{}

	n.Broker = broker.New(broker.Config{Addr: settings.MQTTBroker, ClientID: "relaycore"}, &statusNetworkChecker{n.Status}, func(topic string, payload []byte) {
		n.ingest(payload, nil)
	})

	n.Dispatcher = &envelope.Dispatcher{
		Sensor:   queueAdapter{n.Sensor},
		Config:   queueAdapter{n.Queue},
		Peers:    n.Peers,
		Broker:   n.Broker,
		Prefs:    n.Prefs,
		Restart:  restart,
		ConfigSt: n.ConfigState,
		OnDrop: func(queueName string) {
			log.Warnf("node: dropped document from %s queue", queueName)
		},
	}

	n.SensorWorker = &dispatch.SensorWorker{Queue: n.Sensor, Renderer: rend}
	n.ConfigWorker = &dispatch.ConfigWorker{Queue: n.Queue, Renderer: rend, State: n.ConfigState}

	n.Supervisor = netsup.New(
		&NopWifiDriver{},
		&IfaceLinkChecker{Name: cfg.Interface},
		NopRadioStarter{},
		NopCaptivePortal{},
		netsup.NewMDNSAdvertiser("junctionrelay", 80),
		n.onNetworkEvent,
	)

	backendURL := fmt.Sprintf("ws://%s/ws", resolveBackendHost(settings.BackendPort))
	n.Uplink = uplink.New(
		uplink.NewWSDialer(),
		backendURL,
		uplink.Identity{DeviceMac: deviceMAC(radioDriver), FirmwareVersion: "dev", Library: "relaycore"},
		uplink.NewRuntimeHealth(),
		n.Peers,
		&statusNetworkInfo{n.Status},
		func(payload []byte) { n.ingest(payload, nil) },
	)

	n.Admin = admin.NewServer()
	n.Admin.Prefs = n.Prefs
	n.Admin.Status = n.Status
	n.Admin.Peers = n.Peers
	n.Admin.ConfigState = n.ConfigState
	n.Admin.Broker = n.Broker
	n.Admin.Restart = restart
	n.Admin.Sensor = n.Sensor
	n.Admin.Config = n.Queue
	n.Admin.Metrics = n.Metrics
	n.Admin.PrimaryProtocol = string(n.PrimaryProtocol)
	n.Admin.Info = admin.DeviceInfo{DeviceMAC: deviceMAC(radioDriver), FirmwareVersion: "dev"}
	n.Admin.Capabilities = admin.Capabilities{
		PeerRadio: radioDriver != nil,
		Broker:    n.Broker.Configured(),
		Uplink:    true,
		OTA:       true,
	}
	n.Admin.Ingest = func(r io.Reader) error {
		return transport.NewHTTPBody(func(payload []byte) { n.ingest(payload, nil) }).Consume(r)
	}

	n.AdminAddr = fmt.Sprintf(":%d", cfg.MonitoringPort)

	if cfg.SerialDevice != "" {
		s, err := transport.OpenSerial(cfg.SerialDevice, cfg.SerialBaud, func(payload []byte) { n.ingest(payload, nil) })
		if err != nil {
			return nil, fmt.Errorf("node: opening serial device %s: %w", cfg.SerialDevice, err)
		}
		n.Serial = s
	}

	return n, nil
}

func (n *Node) ingest(payload []byte, reply envelope.ReplyFunc) {
	n.Dispatcher.Dispatch(payload, reply)
}

func (n *Node) onNetworkEvent(networkType string, connected bool) {
	cur := n.Status.Current()
	switch networkType {
	case "wifi":
		cur.WifiConnected = connected
	case "ethernet":
		cur.EthernetConnected = connected
	}
	cur.PeerRadioActive = n.Peers.Initialized()
	cur.UplinkConnected = n.Uplink.State() == uplink.StateRegistered
	cur.BrokerConnected = n.Broker.Connected()
	cur.PrimaryProtocol = string(n.PrimaryProtocol)
	n.Status.Update(cur)
}

// Run drives every execution context until ctx is canceled or a
// fatal error occurs.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.Supervisor.Run(gctx, netsup.Mode(n.Prefs.Snapshot().ConnMode), n.Prefs.Snapshot().SSID, n.Prefs.Snapshot().Pass)
	})

	g.Go(func() error {
		n.SensorWorker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		n.ConfigWorker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		n.Broker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		n.Uplink.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return n.Admin.Run(gctx, n.AdminAddr)
	})

	if n.Serial != nil {
		g.Go(func() error {
			err := n.Serial.Run()
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		n.pushStats(gctx)
		return nil
	})

	return g.Wait()
}

func (n *Node) pushStats(ctx context.Context) {
	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Status.SetQueueStats("sensor", n.Sensor.Len(), n.Sensor.Dropped())
			n.Status.SetQueueStats("config", n.Queue.Len(), n.Queue.Dropped())
			n.Peers.Sweep()
			stats := n.Peers.Stats()
			n.Status.SetPeerStats(stats.PeerCount, stats.ActiveCount)
			n.onNetworkEvent("", false)
		}
	}
}

// queueAdapter narrows queue.Queue[envelope.Document] to envelope.Queue.
type queueAdapter struct {
	q *queue.Queue[envelope.Document]
}

func (a queueAdapter) Push(doc envelope.Document) bool { return a.q.Push(doc) }

// noopRadioDriver is used when no real radio hardware is wired in; sends
// are logged and reported successful, matching renderer.NopRenderer's
// stand-in role for out-of-scope hardware.
type noopRadioDriver struct{}

func (noopRadioDriver) Send(mac peer.MAC, payload []byte) error {
	log.Debugf("peer: (stub) send %d bytes to %s", len(payload), mac)
	return nil
}

func (noopRadioDriver) Broadcast(payload []byte) error {
	log.Debugf("peer: (stub) broadcast %d bytes", len(payload))
	return nil
}

func deviceMAC(d peer.Driver) string {
	return "AA:BB:CC:DD:EE:FF"
}

func resolveBackendHost(port int) string {
	localIP, err := uplink.LocalIPv4()
	if err != nil {
		return fmt.Sprintf("127.0.0.1:%d", port)
	}
	host, err := uplink.DiscoverBackend(localIP, port)
	if err != nil {
		log.Warnf("node: backend discovery failed: %v", err)
		return fmt.Sprintf("%s:%d", localIP, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

