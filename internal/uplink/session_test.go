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

package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu      sync.Mutex
	toRead  chan []byte
	written [][]byte
	closed  bool
}

func newStubConn() *stubConn {
	return &stubConn{toRead: make(chan []byte, 32)}
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-c.toRead
	if !ok {
		return 0, nil, fmt.Errorf("stub: closed")
	}
	return 1, payload, nil
}

func (c *stubConn) WriteMessage(_ int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), payload...)
	c.written = append(c.written, cp)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.toRead)
	}
	return nil
}

func (c *stubConn) writtenTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, b := range c.written {
		var env struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(b, &env) == nil {
			types = append(types, env.Type)
		}
	}
	return types
}

type stubDialer struct {
	conn *stubConn
	err  error
}

func (d *stubDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakeHealth struct{}

func (fakeHealth) FreeHeap() uint64     { return 1000 }
func (fakeHealth) HeapSize() uint64     { return 2000 }
func (fakeHealth) MaxAllocHeap() uint64 { return 1500 }
func (fakeHealth) UptimeMs() uint64     { return 42 }

func newTestSession(conn *stubConn) *Session {
	return New(&stubDialer{conn: conn}, "ws://test", Identity{DeviceMac: "AA:BB:CC:DD:EE:FF"}, fakeHealth{}, nil, nil, nil)
}

func TestSessionReachesRegisteredOnWelcomeAndAck(t *testing.T) {
	conn := newStubConn()
	s := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, 5*time.Millisecond)

	conn.toRead <- []byte(`{"type":"welcome"}`)
	require.Eventually(t, func() bool { return s.State() == StateWelcomed }, time.Second, 5*time.Millisecond)
	require.Contains(t, conn.writtenTypes(), "device-registration")

	conn.toRead <- []byte(`{"type":"device-registration-ack"}`)
	require.Eventually(t, func() bool { return s.State() == StateRegistered }, time.Second, 5*time.Millisecond)
}

func TestSessionRespondsToHealthRequestImmediately(t *testing.T) {
	conn := newStubConn()
	s := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	conn.toRead <- []byte(`{"type":"welcome"}`)
	conn.toRead <- []byte(`{"type":"device-registration-ack"}`)
	require.Eventually(t, func() bool { return s.State() == StateRegistered }, time.Second, 5*time.Millisecond)

	conn.toRead <- []byte(`{"type":"health-request"}`)
	require.Eventually(t, func() bool {
		for _, ty := range conn.writtenTypes() {
			if ty == "health" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSessionRespondsToBarePing(t *testing.T) {
	conn := newStubConn()
	s := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, 5*time.Millisecond)
	conn.toRead <- []byte("ping")

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		for _, b := range conn.written {
			if string(b) == "pong" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSessionFeedsUnknownTypesBackToFallback(t *testing.T) {
	conn := newStubConn()
	var got []byte
	var mu sync.Mutex
	s := New(&stubDialer{conn: conn}, "ws://test", Identity{}, fakeHealth{}, nil, nil, func(payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, 5*time.Millisecond)
	conn.toRead <- []byte(`{"type":"config","screenId":"home"}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, 5*time.Millisecond)
}

func TestSessionClosesOnContextCancel(t *testing.T) {
	conn := newStubConn()
	s := newTestSession(conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.State() == StateOpen }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.Equal(t, StateClosed, s.State())
}

func TestReconnectBacksOffAfterTenFailures(t *testing.T) {
	for i := 1; i < backoffThreshold; i++ {
		require.Equal(t, reconnectWait, retryDelay(i))
	}
	require.Equal(t, backoffDuration, retryDelay(backoffThreshold))
}

// retryDelay mirrors waitBeforeRetry's delay selection without the actual
// sleep, so the backoff schedule can be checked
// directly against every failure count.
func retryDelay(failures int) time.Duration {
	if failures > 0 && failures%backoffThreshold == 0 {
		return backoffDuration
	}
	return reconnectWait
}
