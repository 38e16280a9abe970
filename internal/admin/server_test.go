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

package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/junctionrelay/relaycore/internal/dispatch"
	"github.com/junctionrelay/relaycore/internal/peer"
	"github.com/junctionrelay/relaycore/internal/prefs"
	"github.com/junctionrelay/relaycore/internal/status"
)

type fakePrefs struct {
	settings prefs.Settings
	applied  []prefs.Settings
	wiped    bool
}

func (f *fakePrefs) Snapshot() prefs.Settings { return f.settings }
func (f *fakePrefs) Apply(next prefs.Settings) error {
	f.applied = append(f.applied, next)
	f.settings = next
	return nil
}
func (f *fakePrefs) Wipe() error {
	f.wiped = true
	f.settings = prefs.Settings{BackendPort: prefs.DefaultBackendPort}
	return nil
}

type fakeStatus struct {
	cur status.Snapshot
}

func (f *fakeStatus) Current() status.Snapshot { return f.cur }

type fakeConfigState struct {
	snap dispatch.ConfigSnapshot
}

func (f *fakeConfigState) Snapshot() dispatch.ConfigSnapshot { return f.snap }

type fakePeers struct {
	snap       []peer.Peer
	stats      peer.Stats
	addErr     error
	removeOK   bool
	lastAdd    string
	lastRemove string
}

func (f *fakePeers) Snapshot() []peer.Peer { return f.snap }
func (f *fakePeers) Stats() peer.Stats     { return f.stats }
func (f *fakePeers) AddPeer(mac, name string) error {
	f.lastAdd = mac
	return f.addErr
}
func (f *fakePeers) RemovePeer(mac string) bool {
	f.lastRemove = mac
	return f.removeOK
}

type fakeRestart struct {
	calls []time.Duration
}

func (f *fakeRestart) ScheduleRestart(after time.Duration) {
	f.calls = append(f.calls, after)
}

func newTestServer() (*Server, *fakePrefs, *fakeRestart) {
	p := &fakePrefs{settings: prefs.Settings{BackendPort: prefs.DefaultBackendPort}}
	r := &fakeRestart{}
	s := NewServer()
	s.Prefs = p
	s.Status = &fakeStatus{}
	s.ConfigState = &fakeConfigState{}
	s.Peers = &fakePeers{}
	s.Restart = r
	return s, p, r
}

func TestHeartbeatReturnsStatusOK(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/heartbeat", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestSetPreferencesPersistsAndSchedulesRestartOnConnModeChange(t *testing.T) {
	s, p, r := newTestServer()
	body := `{"connMode":"ethernet"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/device/set-preferences", bytes.NewBufferString(body))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ethernet", p.settings.ConnMode)
	require.Len(t, r.calls, 1)
	require.Equal(t, time.Second, r.calls[0])
}

func TestSetPreferencesNoRestartWhenOnlyRotationChanges(t *testing.T) {
	s, _, r := newTestServer()
	body := `{"rotation":90}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/device/set-preferences", bytes.NewBufferString(body))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, r.calls)
}

func TestSetPreferencesExplicitRestartFlagAlwaysRestarts(t *testing.T) {
	s, _, r := newTestServer()
	body := `{"rotation":90,"restart":true}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/device/set-preferences", bytes.NewBufferString(body))
	s.Handler().ServeHTTP(rec, req)

	require.Len(t, r.calls, 1)
}

func TestWipePreferencesSchedulesThreeSecondRestart(t *testing.T) {
	s, p, r := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/device/wipe-preferences", nil)
	s.Handler().ServeHTTP(rec, req)

	require.True(t, p.wiped)
	require.Len(t, r.calls, 1)
	require.Equal(t, 3*time.Second, r.calls[0])
}

func TestESPNowPeersGetReturnsSnapshot(t *testing.T) {
	s, _, _ := newTestServer()
	mac, err := peer.ParseMAC("AA:BB:CC:DD:EE:01")
	require.NoError(t, err)
	s.Peers.(*fakePeers).snap = []peer.Peer{{MAC: mac, DisplayName: "one"}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/espnow/peers", nil)
	s.Handler().ServeHTTP(rec, req)

	var got []peer.Peer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "AA:BB:CC:DD:EE:01", got[0].MAC.String())
}

func TestESPNowPeersDeleteReportsFailureWhenNotFound(t *testing.T) {
	s, _, _ := newTestServer()
	s.Peers.(*fakePeers).removeOK = false

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/espnow/peers?mac=AA:BB:CC:DD:EE:02", nil)
	s.Handler().ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, false, resp["success"])
}

func TestMethodNotAllowedOnWrongVerb(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/device/info", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOTAFirmwareStreamsBodyAndSchedulesRestart(t *testing.T) {
	s, _, r := newTestServer()
	var buf bytes.Buffer
	s.OTAWriter = &buf

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/ota/firmware", bytes.NewBufferString("firmware-bytes"))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "firmware-bytes", buf.String())
	require.Len(t, r.calls, 1)
}

func TestMetricsRouteAbsentWithoutRegistry(t *testing.T) {
	s, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsRouteServesRegisteredGauges(t *testing.T) {
	s, _, _ := newTestServer()
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "relaycore_test_gauge", Help: "test"})
	gauge.Set(1)
	registry.MustRegister(gauge)
	s.Metrics = registry

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "relaycore_test_gauge 1")
}
