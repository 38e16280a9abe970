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

package peer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu        sync.Mutex
	sent      map[MAC][][]byte
	broadcast [][]byte
	failSend  bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{sent: make(map[MAC][][]byte)}
}

func (d *fakeDriver) Send(mac MAC, payload []byte) error {
	if d.failSend {
		return fmt.Errorf("driver: send failed")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[mac] = append(d.sent[mac], payload)
	return nil
}

func (d *fakeDriver) Broadcast(payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcast = append(d.broadcast, payload)
	return nil
}

func macFor(n byte) string {
	return MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, n}.String()
}

func TestAddPeerIdempotentOnDuplicate(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	require.NoError(t, m.AddPeer(macFor(1), "one"))
	require.NoError(t, m.AddPeer(macFor(1), "one-renamed"))
	require.Len(t, m.Snapshot(), 1)
	require.Equal(t, "one-renamed", m.Snapshot()[0].DisplayName)
}

func TestAddPeerRejectsWhenFullAndAllActive(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	for i := 0; i < MaxPeers; i++ {
		require.NoError(t, m.AddPeer(macFor(byte(i)), ""))
	}
	err := m.AddPeer(macFor(99), "overflow")
	require.Error(t, err)
	require.Len(t, m.Snapshot(), MaxPeers)
}

func TestAddPeerEvictsOldestInactiveWhenFull(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	base := time.Unix(1000, 0)
	m.now = func() time.Time { return base }

	for i := 0; i < MaxPeers; i++ {
		require.NoError(t, m.AddPeer(macFor(byte(i)), ""))
	}

	// give peer 0 an earlier LastSeen, then advance the clock past Timeout
	// so Sweep marks everyone inactive with peer 0 strictly oldest.
	m.mu.Lock()
	m.peers[MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0}].LastSeen = base.Add(-time.Hour)
	m.mu.Unlock()

	m.now = func() time.Time { return base.Add(time.Hour) }
	m.Sweep()

	err := m.AddPeer(macFor(200), "newcomer")
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, MaxPeers)
	for _, p := range snap {
		require.NotEqual(t, MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0}, p.MAC)
	}
}

func TestSendUpdatesLastSeenOnSuccess(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(d, nil)
	require.NoError(t, m.AddPeer(macFor(1), ""))

	require.NoError(t, m.Send(macFor(1), []byte("hello")))

	addr, _ := ParseMAC(macFor(1))
	require.Equal(t, [][]byte{[]byte("hello")}, d.sent[addr])
}

func TestSendToUnknownPeerFails(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	err := m.Send(macFor(42), []byte("x"))
	require.Error(t, err)
}

func TestSendErrorCountedWithoutRetry(t *testing.T) {
	d := newFakeDriver()
	d.failSend = true
	m := NewManager(d, nil)
	require.NoError(t, m.AddPeer(macFor(1), ""))

	err := m.Send(macFor(1), []byte("x"))
	require.Error(t, err)
	require.EqualValues(t, 1, m.Stats().SendErrors)

	// second call is a distinct attempt, not an automatic retry of the first
	err = m.Send(macFor(1), []byte("x"))
	require.Error(t, err)
	require.EqualValues(t, 2, m.Stats().SendErrors)
}

func TestBroadcastReachesDriver(t *testing.T) {
	d := newFakeDriver()
	m := NewManager(d, nil)
	require.NoError(t, m.Broadcast([]byte("all")))
	require.Equal(t, [][]byte{[]byte("all")}, d.broadcast)
}

func TestReceiveAddsUnseenPeerAndForwards(t *testing.T) {
	var got []byte
	m := NewManager(newFakeDriver(), func(payload []byte) { got = payload })

	m.Receive(macFor(7), -50, []byte("frame"))

	require.Equal(t, []byte("frame"), got)
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, -50, snap[0].RSSI)
	require.True(t, snap[0].Active)
}

func TestReceiveDropsWhenTableFullAndNoInactive(t *testing.T) {
	var calls int
	m := NewManager(newFakeDriver(), func(payload []byte) { calls++ })
	for i := 0; i < MaxPeers; i++ {
		require.NoError(t, m.AddPeer(macFor(byte(i)), ""))
	}

	m.Receive(macFor(250), -40, []byte("overflow"))

	require.Zero(t, calls)
	require.Len(t, m.Snapshot(), MaxPeers)
}

func TestSweepMarksStalePeersInactive(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	base := time.Unix(2000, 0)
	m.now = func() time.Time { return base }
	require.NoError(t, m.AddPeer(macFor(1), ""))

	m.now = func() time.Time { return base.Add(Timeout + time.Second) }
	m.Sweep()

	snap := m.Snapshot()
	require.Len(t, snap, 1)
	require.False(t, snap[0].Active)
}

func TestRemovePeer(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	require.NoError(t, m.AddPeer(macFor(1), ""))
	require.True(t, m.RemovePeer(macFor(1)))
	require.False(t, m.RemovePeer(macFor(1)))
	require.Empty(t, m.Snapshot())
}

func TestStatsCountsActiveAndTotal(t *testing.T) {
	m := NewManager(newFakeDriver(), nil)
	base := time.Unix(3000, 0)
	m.now = func() time.Time { return base }
	require.NoError(t, m.AddPeer(macFor(1), ""))
	require.NoError(t, m.AddPeer(macFor(2), ""))

	m.now = func() time.Time { return base.Add(Timeout + time.Second) }
	m.Sweep()
	require.NoError(t, m.AddPeer(macFor(3), ""))

	stats := m.Stats()
	require.Equal(t, 3, stats.PeerCount)
	require.Equal(t, 1, stats.ActiveCount)
}
