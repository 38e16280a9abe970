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

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNetwork struct{ up bool }

func (f *fakeNetwork) NetworkUp() bool { return f.up }

func TestNormalizeAddrAppliesDefaultPort(t *testing.T) {
	require.Equal(t, "tcp://mqtt.local:1883", normalizeAddr("mqtt.local"))
	require.Equal(t, "tcp://mqtt.local:8883", normalizeAddr("mqtt.local:8883"))
	require.Equal(t, "", normalizeAddr(""))
}

func TestConfiguredReflectsAddr(t *testing.T) {
	c := New(Config{Addr: ""}, &fakeNetwork{}, nil)
	require.False(t, c.Configured())

	c = New(Config{Addr: "broker.local"}, &fakeNetwork{}, nil)
	require.True(t, c.Configured())
}

func TestRunReturnsOnCancelWhenUnconfigured(t *testing.T) {
	c := New(Config{}, &fakeNetwork{up: true}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestPublishFailsWhenDisconnected(t *testing.T) {
	c := New(Config{Addr: "broker.local"}, &fakeNetwork{}, nil)
	err := c.Publish([]byte("x"))
	require.Error(t, err)
}

func TestSubscribeRemembersTopicBeforeConnect(t *testing.T) {
	c := New(Config{Addr: "broker.local"}, &fakeNetwork{}, nil)
	c.Subscribe("sensors/+/update")

	c.mu.Lock()
	_, ok := c.subs["sensors/+/update"]
	c.mu.Unlock()
	require.True(t, ok)
}

func TestRunNeverAttemptsConnectWhileNetworkDown(t *testing.T) {
	net := &fakeNetwork{up: false}
	c := New(Config{Addr: "192.0.2.1:1883"}, net, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	c.Run(ctx)
	require.False(t, c.Connected())
}
