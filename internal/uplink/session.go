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
Package uplink implements the backend uplink session: a single
WebSocket-style client connection with a state machine, reconnect policy,
and periodic heartbeat/health reporting. Inbound frames whose type the
session itself does not consume are handed back into the shared envelope
dispatcher, exactly as if they had arrived over any other transport.
*/
package uplink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is a position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateWelcomed
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateWelcomed:
		return "WELCOMED"
	case StateRegistered:
		return "REGISTERED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const (
	heartbeatPeriod   = 30 * time.Second
	healthPeriod      = 60 * time.Second
	reconnectWait     = 5 * time.Second
	connectTimeout    = 15 * time.Second
	backoffThreshold  = 10
	backoffDuration   = 30 * time.Second
)

// Conn is the minimal surface of a gorilla/websocket.Conn the session
// needs, so tests can substitute a stub transport.
type Conn interface {
	ReadMessage() (messageType int, payload []byte, err error)
	WriteMessage(messageType int, payload []byte) error
	Close() error
}

// Dialer opens a new Conn to url, respecting ctx's deadline.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Identity is the static device identity used to build outbound frames.
type Identity struct {
	DeviceMac          string
	DeviceName         string
	FirmwareVersion    string
	DeviceModel        string
	ChipModel          string
	ChipRevision       string
	CPUFreqMHz         int
	FlashSize          int
	Library            string
	Capabilities       []string
	SupportedProtocols []string
}

// HealthProvider supplies the runtime facts embedded in heartbeat/health
// frames. Implementations may draw on gopsutil or pure-Go
// runtime stats.
type HealthProvider interface {
	FreeHeap() uint64
	HeapSize() uint64
	MaxAllocHeap() uint64
	UptimeMs() uint64
}

// PeerSummary supplies the peer-radio facts embedded in espnow-status
// frames. Satisfied by the peer radio manager.
type PeerSummary interface {
	Initialized() bool
	OnlinePeers() []string
	OfflinePeers() []string
}

// NetworkInfo supplies the IP/connection-type facts the session embeds in
// outbound frames.
type NetworkInfo interface {
	IPAddress() string
	ConnectionType() string
	WifiRSSI() (int, bool)
}

// Fallback handles inbound envelopes the session itself does not consume
//.
type Fallback func(payload []byte)

// Session owns one logical uplink connection and its lifecycle.
type Session struct {
	Dialer   Dialer
	URL      string
	Identity Identity
	Health   HealthProvider
	Peers    PeerSummary
	Network  NetworkInfo
	OnUnconsumed Fallback

	mu    sync.RWMutex
	state State

	now func() time.Time
}

// New constructs a Session targeting url.
func New(dialer Dialer, url string, identity Identity, health HealthProvider, peers PeerSummary, network NetworkInfo, onUnconsumed Fallback) *Session {
	return &Session{
		Dialer: dialer, URL: url, Identity: identity,
		Health: health, Peers: peers, Network: network,
		OnUnconsumed: onUnconsumed,
		state:        StateIdle,
		now:          time.Now,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives reconnect/connect cycles until ctx is canceled.
func (s *Session) Run(ctx context.Context) {
	failures := 0
	for {
		select {
		case <-ctx.Done():
			s.setState(StateClosed)
			return
		default:
		}

		s.setState(StateConnecting)
		dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		conn, err := s.Dialer.Dial(dialCtx, s.URL)
		cancel()
		if err != nil {
			log.Warnf("uplink: connect failed: %v", err)
			s.setState(StateClosed)
			failures++
			if !s.waitBeforeRetry(ctx, failures) {
				return
			}
			continue
		}

		failures = 0
		s.setState(StateOpen)
		s.runConnected(ctx, conn)
		s.setState(StateClosed)

		if !s.waitBeforeRetry(ctx, 0) {
			return
		}
	}
}

// waitBeforeRetry applies the reconnect policy: 5s between
// attempts, with a 30s quiescent gap imposed every 10 consecutive
// failures. Returns false if ctx was canceled while waiting.
func (s *Session) waitBeforeRetry(ctx context.Context, failures int) bool {
	wait := reconnectWait
	if failures > 0 && failures%backoffThreshold == 0 {
		wait = backoffDuration
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

// runConnected drives one live connection through OPEN/WELCOMED/
// REGISTERED until it closes, is canceled, or a read fails.
func (s *Session) runConnected(ctx context.Context, conn Conn) {
	defer conn.Close()

	inbound := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				close(inbound)
				return
			}
			inbound <- payload
		}
	}()

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()
	health := time.NewTicker(healthPeriod)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			log.Warnf("uplink: connection read failed: %v", err)
			return
		case payload, ok := <-inbound:
			if !ok {
				return
			}
			if string(payload) == "ping" {
				_ = conn.WriteMessage(1, []byte("pong"))
				continue
			}
			if err := s.handleInbound(conn, payload); err != nil {
				log.Warnf("uplink: handling inbound frame: %v", err)
			}
		case <-heartbeat.C:
			if s.State() == StateRegistered {
				s.sendHeartbeat(conn)
			}
		case <-health.C:
			if s.State() == StateRegistered {
				s.sendHealth(conn)
			}
		}
	}
}

func (s *Session) handleInbound(conn Conn, payload []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		if s.OnUnconsumed != nil {
			s.OnUnconsumed(payload)
		}
		return nil
	}

	switch env.Type {
	case "welcome":
		s.setState(StateWelcomed)
		return s.sendRegistration(conn)
	case "device-registration-ack":
		s.setState(StateRegistered)
		return nil
	case "health-request":
		s.sendHealth(conn)
		return nil
	case "espnow-status-request":
		s.sendEspnowStatus(conn)
		return nil
	case "heartbeat-ack", "health-ack", "config-ack", "error":
		return nil
	default:
		if s.OnUnconsumed != nil {
			s.OnUnconsumed(payload)
		}
		return nil
	}
}

func (s *Session) sendRegistration(conn Conn) error {
	frame := s.buildRegistration()
	return s.writeJSON(conn, frame)
}

func (s *Session) sendHeartbeat(conn Conn) {
	if err := s.writeJSON(conn, s.buildHeartbeat()); err != nil {
		log.Warnf("uplink: send heartbeat failed: %v", err)
	}
}

func (s *Session) sendHealth(conn Conn) {
	if err := s.writeJSON(conn, s.buildHealth()); err != nil {
		log.Warnf("uplink: send health failed: %v", err)
	}
}

func (s *Session) sendEspnowStatus(conn Conn) {
	if err := s.writeJSON(conn, s.buildEspnowStatus()); err != nil {
		log.Warnf("uplink: send espnow-status failed: %v", err)
	}
}

func (s *Session) writeJSON(conn Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(1, b)
}
