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
Package peer implements the peer radio manager: a bounded peer
table with unicast send, broadcast, and a receive path that feeds decoded
radio payloads back into the frame/envelope pipeline, indistinguishable
from any other ingress transport once a frame is decoded.
*/
package peer

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// MaxPeers bounds the peer table.
	MaxPeers = 20
	// Timeout marks a peer inactive after this much silence.
	Timeout = 30 * time.Second
	// HistoryLimit bounds the per-peer received-payload history.
	HistoryLimit = 50
)

// Driver is the underlying radio transport. Send/Broadcast enqueue bytes
// for transmission; errors are never retried by the manager.
type Driver interface {
	Send(mac MAC, payload []byte) error
	Broadcast(payload []byte) error
}

// Peer is one entry in the bounded peer table.
type Peer struct {
	MAC         MAC       `json:"mac"`
	DisplayName string    `json:"displayName"`
	LastSeen    time.Time `json:"lastSeen"`
	RSSI        int       `json:"rssi"`
	Active      bool      `json:"active"`
}

type peerEntry struct {
	Peer
	history [][]byte
}

// ReceiveHandler is invoked with the raw payload bytes of an inbound radio
// frame, to be fed into the shared frame/envelope pipeline.
type ReceiveHandler func(payload []byte)

// Manager owns the peer table and the send/broadcast/receive paths.
type Manager struct {
	mu     sync.RWMutex
	peers  map[MAC]*peerEntry
	driver Driver
	onRecv ReceiveHandler

	sendErrors int64
	now        func() time.Time
}

// NewManager returns an initialized Manager bound to driver. onReceive may
// be nil in tests that never exercise Receive.
func NewManager(driver Driver, onReceive ReceiveHandler) *Manager {
	return &Manager{
		peers:  make(map[MAC]*peerEntry),
		driver: driver,
		onRecv: onReceive,
		now:    time.Now,
	}
}

// Initialized reports whether the manager has a usable radio driver.
func (m *Manager) Initialized() bool {
	return m != nil && m.driver != nil
}

// AddPeer parses mac, rejects invalid formats, and adds (or no-ops on an
// existing) entry. If the table is full, the oldest inactive peer is
// evicted to make room; if none is inactive, the add is rejected.
func (m *Manager) AddPeer(mac, displayName string) error {
	addr, err := ParseMAC(mac)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(addr, displayName)
}

func (m *Manager) addLocked(addr MAC, displayName string) error {
	if e, ok := m.peers[addr]; ok {
		if displayName != "" {
			e.DisplayName = displayName
		}
		return nil
	}

	if len(m.peers) >= MaxPeers {
		victim, ok := m.oldestInactiveLocked()
		if !ok {
			return fmt.Errorf("peer: table full (%d peers)", MaxPeers)
		}
		delete(m.peers, victim)
	}

	m.peers[addr] = &peerEntry{Peer: Peer{
		MAC:         addr,
		DisplayName: displayName,
		LastSeen:    m.now(),
		Active:      true,
	}}
	return nil
}

func (m *Manager) oldestInactiveLocked() (MAC, bool) {
	var victim MAC
	var oldest time.Time
	found := false
	for mac, e := range m.peers {
		if e.Active {
			continue
		}
		if !found || e.LastSeen.Before(oldest) {
			victim, oldest = mac, e.LastSeen
			found = true
		}
	}
	return victim, found
}

// RemovePeer explicitly retires a peer entry.
func (m *Manager) RemovePeer(mac string) bool {
	addr, err := ParseMAC(mac)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[addr]; !ok {
		return false
	}
	delete(m.peers, addr)
	return true
}

// Send validates the peer exists (auto-adding the broadcast address if
// needed), enqueues payload through the driver, and tracks last-seen on
// success. Driver errors increment SendErrors and are not retried.
func (m *Manager) Send(mac string, payload []byte) error {
	addr, err := ParseMAC(mac)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, ok := m.peers[addr]; !ok {
		if addr == BroadcastMAC {
			_ = m.addLocked(addr, "broadcast")
		} else {
			m.mu.Unlock()
			return fmt.Errorf("peer: unknown peer %s", addr)
		}
	}
	m.mu.Unlock()

	if !m.Initialized() {
		return fmt.Errorf("peer: radio driver not initialized")
	}

	if err := m.driver.Send(addr, payload); err != nil {
		m.mu.Lock()
		m.sendErrors++
		m.mu.Unlock()
		log.Errorf("peer: send to %s failed: %v", addr, err)
		return err
	}

	m.mu.Lock()
	if e, ok := m.peers[addr]; ok {
		e.LastSeen = m.now()
		e.Active = true
	}
	m.mu.Unlock()
	return nil
}

// Broadcast sends payload to all reachable peers via the driver.
func (m *Manager) Broadcast(payload []byte) error {
	if !m.Initialized() {
		return fmt.Errorf("peer: radio driver not initialized")
	}
	if err := m.driver.Broadcast(payload); err != nil {
		m.mu.Lock()
		m.sendErrors++
		m.mu.Unlock()
		log.Errorf("peer: broadcast failed: %v", err)
		return err
	}
	return nil
}

// Receive records an inbound frame from mac (adding it if unseen, subject
// to the same capacity rule as AddPeer) and forwards payload to the
// receive handler, exactly as any other ingress transport would.
func (m *Manager) Receive(mac string, rssi int, payload []byte) {
	addr, err := ParseMAC(mac)
	if err != nil {
		log.Errorf("peer: dropping inbound frame from invalid MAC %q: %v", mac, err)
		return
	}

	m.mu.Lock()
	if err := m.addLocked(addr, ""); err != nil {
		m.mu.Unlock()
		log.Warnf("peer: dropping inbound frame from %s, table full: %v", addr, err)
		return
	}
	e := m.peers[addr]
	e.LastSeen = m.now()
	e.RSSI = rssi
	e.Active = true
	e.history = append(e.history, payload)
	if len(e.history) > HistoryLimit {
		e.history = e.history[len(e.history)-HistoryLimit:]
	}
	m.mu.Unlock()

	if m.onRecv != nil {
		m.onRecv(payload)
	}
}

// Sweep marks peers inactive when they have been silent longer than
// Timeout. Inactive peers remain queryable but become eviction candidates.
func (m *Manager) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.peers {
		if now.Sub(e.LastSeen) > Timeout {
			e.Active = false
		}
	}
}

// OnlinePeers returns the MAC strings of all currently active peers,
// satisfying uplink.PeerSummary for the espnow-status frame.
func (m *Manager) OnlinePeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, e := range m.peers {
		if e.Active {
			out = append(out, e.MAC.String())
		}
	}
	return out
}

// OfflinePeers returns the MAC strings of all currently inactive peers.
func (m *Manager) OfflinePeers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, e := range m.peers {
		if !e.Active {
			out = append(out, e.MAC.String())
		}
	}
	return out
}

// Snapshot returns a read-only copy of the peer table.
func (m *Manager) Snapshot() []Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Peer, 0, len(m.peers))
	for _, e := range m.peers {
		out = append(out, e.Peer)
	}
	return out
}

// Stats reports aggregate counters for the admin/status surface.
type Stats struct {
	PeerCount   int   `json:"peerCount"`
	ActiveCount int   `json:"activeCount"`
	SendErrors  int64 `json:"sendErrors"`
}

// Stats returns a snapshot of aggregate counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{PeerCount: len(m.peers), SendErrors: m.sendErrors}
	for _, e := range m.peers {
		if e.Active {
			s.ActiveCount++
		}
	}
	return s
}
