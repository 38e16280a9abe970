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

package dispatch

import (
	"sync"
	"time"
)

// ConfigState tracks whether the device has ever successfully applied a
// config document, and when. It gates external advertising of readiness
// to consume sensor updates and is reset by wipe_preferences. All fields
// are owned by the config worker; other components only read a
// Snapshot.
type ConfigState struct {
	mu            sync.RWMutex
	hasReceived   bool
	lastTimestamp time.Time
	count         int64
}

// NewConfigState returns a fresh, unreceived ConfigState.
func NewConfigState() *ConfigState {
	return &ConfigState{}
}

func (c *ConfigState) markReceived(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasReceived = true
	c.lastTimestamp = now
	c.count++
}

// Reset clears the received state, used on wipe_preferences.
func (c *ConfigState) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasReceived = false
	c.lastTimestamp = time.Time{}
	c.count = 0
}

// ConfigSnapshot is a point-in-time read of ConfigState.
type ConfigSnapshot struct {
	HasReceivedConfig bool
	LastConfigAt      time.Time
	ConfigCount       int64
}

// Snapshot returns a copy of the current state.
func (c *ConfigState) Snapshot() ConfigSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConfigSnapshot{
		HasReceivedConfig: c.hasReceived,
		LastConfigAt:      c.lastTimestamp,
		ConfigCount:       c.count,
	}
}
