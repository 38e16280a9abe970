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
Package admin implements the admin RPC façade as a concrete
net/http server with a flat JSON-over-HTTP style, backed by the
preferences store and the status aggregator.
*/
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/junctionrelay/relaycore/internal/dispatch"
	"github.com/junctionrelay/relaycore/internal/peer"
	"github.com/junctionrelay/relaycore/internal/prefs"
	"github.com/junctionrelay/relaycore/internal/status"
)

// PreferencesStore is the subset of prefs.Store the façade needs.
type PreferencesStore interface {
	Snapshot() prefs.Settings
	Apply(prefs.Settings) error
	Wipe() error
}

// StatusProvider is the subset of status.Aggregator the façade needs.
type StatusProvider interface {
	Current() status.Snapshot
}

// ConfigStateProvider reports the dispatch config worker's received state.
type ConfigStateProvider interface {
	Snapshot() dispatch.ConfigSnapshot
}

// QueueStats is the subset of queue.Queue the façade reports on.
type QueueStats interface {
	Len() int
	Cap() int
	Dropped() int64
}

// PeerTable is the subset of peer.Manager the façade needs.
type PeerTable interface {
	Snapshot() []peer.Peer
	Stats() peer.Stats
	AddPeer(mac, displayName string) error
	RemovePeer(mac string) bool
}

// Restarter schedules a device restart after a delay.
type Restarter interface {
	ScheduleRestart(after time.Duration)
}

// BrokerStatus is the subset of broker.Client the façade needs.
type BrokerStatus interface {
	Configured() bool
	Connected() bool
}

// DeviceInfo is static identity served by GET /api/device/info.
type DeviceInfo struct {
	DeviceMAC       string `json:"deviceMac"`
	FirmwareVersion string `json:"firmwareVersion"`
}

// Capabilities is the capability document served by GET /api/device/capabilities.
type Capabilities struct {
	PeerRadio bool `json:"peerRadio"`
	Broker    bool `json:"broker"`
	Uplink    bool `json:"uplink"`
	OTA       bool `json:"ota"`
}

// Server implements the admin RPC façade. Its only goroutine is the
// listener Run starts; Run blocks serving HTTP until ctx is done.
type Server struct {
	Prefs       PreferencesStore
	Status      StatusProvider
	Peers       PeerTable
	ConfigState ConfigStateProvider
	Broker      BrokerStatus
	Restart     Restarter

	Sensor QueueStats
	Config QueueStats

	Info         DeviceInfo
	Capabilities Capabilities

	// PrimaryProtocol is the transport resolved from ConnMode at
	// bootstrap, surfaced on both the full and lite stats endpoints.
	PrimaryProtocol string

	// OTAWriter receives the streamed firmware upload body. If nil, the
	// upload is drained and discarded (the OTA mechanism itself is a
	// Non-goal; only the endpoint contract is in scope).
	OTAWriter io.Writer

	// Ingest, if set, consumes a raw framed-byte request body the same
	// way any other transport does.
	Ingest func(r io.Reader) error

	// Metrics, if set, is exposed read-only at GET /metrics via
	// promhttp, alongside the flat JSON stats endpoints.
	Metrics *prometheus.Registry

	startedAt time.Time
}

// NewServer returns a Server with its start time recorded for uptime
// reporting.
func NewServer() *Server {
	return &Server{startedAt: time.Now()}
}

// Handler builds the http.Handler implementing every admin endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/device/capabilities", s.handleCapabilities)
	mux.HandleFunc("/api/device/info", s.handleInfo)
	mux.HandleFunc("/api/device/preferences", s.handlePreferencesGet)
	mux.HandleFunc("/api/device/set-preferences", s.handleSetPreferences)
	mux.HandleFunc("/api/device/wipe-preferences", s.handleWipePreferences)
	mux.HandleFunc("/api/connection/status", s.handleConnectionStatus)
	mux.HandleFunc("/api/system/stats", s.handleSystemStats)
	mux.HandleFunc("/api/system/statslite", s.handleSystemStatsLite)
	mux.HandleFunc("/api/gateway/status", s.handleGatewayStatus)
	mux.HandleFunc("/api/espnow/peers", s.handleESPNowPeers)
	mux.HandleFunc("/api/espnow/status", s.handleESPNowStatus)
	mux.HandleFunc("/api/espnow/stats", s.handleESPNowStats)
	mux.HandleFunc("/api/ota/firmware", s.handleOTAFirmware)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/health/heartbeat", s.handleHeartbeat)
	if s.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run starts serving on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	log.Infof("admin: starting http server on %s", addr)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := w.Write(b); err != nil {
		log.Errorf("admin: failed to reply: %v", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	for _, m := range allowed {
		if r.Method == m {
			return false
		}
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return true
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.Capabilities)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.Info)
}

func (s *Server) handlePreferencesGet(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.Prefs.Snapshot())
}

// handleSetPreferences applies the POST /api/device/set-preferences body:
// any subset of fields may be present; Restart requests an unconditional
// restart regardless of which fields changed.
func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}

	prev := s.Prefs.Snapshot()
	next := prev
	var req struct {
		ConnMode      *string `json:"connMode"`
		SSID          *string `json:"wifiSSID"`
		Pass          *string `json:"wifiPassword"`
		MQTTBroker    *string `json:"mqttBroker"`
		MQTTUsername  *string `json:"mqttUsername"`
		MQTTPassword  *string `json:"mqttPassword"`
		BackendPort   *int    `json:"backendPort"`
		Rotation      *int    `json:"rotation"`
		SwapBlueGreen *bool   `json:"swapBlueGreen"`
		NeoPin1       *int    `json:"externalNeoPixelsData1"`
		NeoPin2       *int    `json:"externalNeoPixelsData2"`
		Restart       bool    `json:"restart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	if req.ConnMode != nil {
		next.ConnMode = *req.ConnMode
	}
	if req.SSID != nil {
		next.SSID = *req.SSID
	}
	if req.Pass != nil {
		next.Pass = *req.Pass
	}
	if req.MQTTBroker != nil {
		next.MQTTBroker = *req.MQTTBroker
	}
	if req.MQTTUsername != nil {
		next.MQTTUsername = *req.MQTTUsername
	}
	if req.MQTTPassword != nil {
		next.MQTTPassword = *req.MQTTPassword
	}
	if req.BackendPort != nil {
		next.BackendPort = *req.BackendPort
	}
	if req.Rotation != nil {
		next.Rotation = *req.Rotation
	}
	if req.SwapBlueGreen != nil {
		next.SwapBlueGreen = *req.SwapBlueGreen
	}
	if req.NeoPin1 != nil {
		next.NeoPin1 = *req.NeoPin1
	}
	if req.NeoPin2 != nil {
		next.NeoPin2 = *req.NeoPin2
	}

	if err := s.Prefs.Apply(next); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"success": true})

	if req.Restart || prefs.RequiresRestart(prev, next) {
		if s.Restart != nil {
			s.Restart.ScheduleRestart(time.Second)
		}
	}
}

func (s *Server) handleWipePreferences(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	if err := s.Prefs.Wipe(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true})
	if s.Restart != nil {
		s.Restart.ScheduleRestart(3 * time.Second)
	}
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.Status.Current())
}

type systemStats struct {
	UptimeMs        int64           `json:"uptimeMs"`
	SensorQueue     queueStats      `json:"sensorQueue"`
	ConfigQueue     queueStats      `json:"configQueue"`
	ConfigReceived  bool            `json:"hasReceivedConfig"`
	ConfigCount     int64           `json:"configCount"`
	BrokerConnected bool            `json:"brokerConnected"`
	PrimaryProtocol string          `json:"primaryProtocol"`
	Connection      status.Snapshot `json:"connection"`
}

type queueStats struct {
	Depth    int   `json:"depth"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

func (s *Server) snapshotStats() systemStats {
	cfg := s.ConfigState.Snapshot()
	stats := systemStats{
		UptimeMs:        time.Since(s.startedAt).Milliseconds(),
		ConfigReceived:  cfg.HasReceivedConfig,
		ConfigCount:     cfg.ConfigCount,
		PrimaryProtocol: s.PrimaryProtocol,
		Connection:      s.Status.Current(),
	}
	if s.Sensor != nil {
		stats.SensorQueue = queueStats{Depth: s.Sensor.Len(), Capacity: s.Sensor.Cap(), Dropped: s.Sensor.Dropped()}
	}
	if s.Config != nil {
		stats.ConfigQueue = queueStats{Depth: s.Config.Len(), Capacity: s.Config.Cap(), Dropped: s.Config.Dropped()}
	}
	if s.Broker != nil {
		stats.BrokerConnected = s.Broker.Connected()
	}
	return stats
}

func (s *Server) handleSystemStats(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.snapshotStats())
}

// handleSystemStatsLite serves the same document with the embedded
// Connection snapshot zeroed.
func (s *Server) handleSystemStatsLite(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	stats := s.snapshotStats()
	stats.Connection = status.Snapshot{}
	writeJSON(w, stats)
}

func (s *Server) handleGatewayStatus(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	cur := s.Status.Current()
	writeJSON(w, map[string]any{
		"ready":             cur.EthernetConnected && cur.PeerRadioActive,
		"ethernetConnected": cur.EthernetConnected,
		"peerRadioActive":   cur.PeerRadioActive,
	})
}

func (s *Server) handleESPNowPeers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.Peers.Snapshot())
	case http.MethodPost:
		var req struct {
			MAC         string `json:"mac"`
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
		if err := s.Peers.AddPeer(req.MAC, req.DisplayName); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"success": true})
	case http.MethodDelete:
		mac := r.URL.Query().Get("mac")
		ok := s.Peers.RemovePeer(mac)
		writeJSON(w, map[string]any{"success": ok})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleESPNowStatus(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, map[string]any{"active": s.Status.Current().PeerRadioActive})
}

func (s *Server) handleESPNowStats(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, s.Peers.Stats())
}

// handleOTAFirmware streams the request body to OTAWriter and schedules a
// restart once fully received. The OTA mechanism itself is a Non-goal;
// this is the upload endpoint contract only.
func (s *Server) handleOTAFirmware(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	dst := s.OTAWriter
	if dst == nil {
		dst = io.Discard
	}
	n, err := io.Copy(dst, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Infof("admin: received %d firmware bytes, rebooting", n)
	writeJSON(w, map[string]any{"success": true, "bytesReceived": n})
	if s.Restart != nil {
		s.Restart.ScheduleRestart(time.Second)
	}
}

// handleIngest treats the request body as a raw framed-byte ingress
// transport, symmetric with transport.HTTPBody.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodPost) {
		return
	}
	if s.Ingest == nil {
		http.Error(w, "ingest not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.Ingest(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, map[string]any{"status": "OK"})
}
