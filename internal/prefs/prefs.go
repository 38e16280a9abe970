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
Package prefs implements the persisted preferences store: a
keyed settings struct persisted as YAML to a single file, mutated only
through Apply, read as copies by everything else.
*/
package prefs

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// DefaultBackendPort is substituted for an invalid stored port (<=0 or
// >65535) on load.
const DefaultBackendPort = 7180

// Settings is the persisted preferences document. JSON tags
// match the admin RPC wire names; YAML tags match the on-disk file.
type Settings struct {
	ConnMode      string `yaml:"connMode" json:"connMode"`
	SSID          string `yaml:"ssid" json:"wifiSSID"`
	Pass          string `yaml:"pass" json:"wifiPassword,omitempty"`
	MQTTBroker    string `yaml:"mqttBroker" json:"mqttBroker"`
	MQTTUsername  string `yaml:"mqttUsername" json:"mqttUsername"`
	MQTTPassword  string `yaml:"mqttPassword" json:"mqttPassword,omitempty"`
	BackendPort   int    `yaml:"backendPort" json:"backendPort"`
	Rotation      int    `yaml:"rotation" json:"rotation"`
	SwapBlueGreen bool   `yaml:"swapBlueGreen" json:"swapBlueGreen"`
	NeoPin1       int    `yaml:"neoPin1" json:"externalNeoPixelsData1"`
	NeoPin2       int    `yaml:"neoPin2" json:"externalNeoPixelsData2"`
}

func defaults() Settings {
	return Settings{BackendPort: DefaultBackendPort}
}

// Store owns the on-disk preferences file. All mutation is funneled
// through Apply, invoked from the single admin-handler task.
type Store struct {
	path string

	mu       sync.RWMutex
	settings Settings
}

// Load reads path, applying compiled-in defaults for any invalid or
// missing values. A missing file is not an error: it yields defaults
// seeded with seedConnMode (the node config's ConnMode), so first boot
// starts in the operator-configured connection mode rather than empty.
func Load(path string, seedConnMode string) (*Store, error) {
	s := &Store{path: path, settings: defaults()}
	if seedConnMode != "" {
		s.settings.ConnMode = seedConnMode
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("prefs: no preferences file at %s, using defaults (connMode=%q)", path, s.settings.ConnMode)
			return s, nil
		}
		return nil, err
	}

	var loaded Settings
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, err
	}
	if loaded.BackendPort <= 0 || loaded.BackendPort > 65535 {
		log.Warnf("prefs: invalid backendPort %d in %s, using default %d", loaded.BackendPort, path, DefaultBackendPort)
		loaded.BackendPort = DefaultBackendPort
	}
	s.settings = loaded
	return s, nil
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Apply replaces the stored settings with next as a whole and persists
// the result; no field-by-field merge is done, so callers supply a full
// Settings built from the current snapshot plus their own changes. An
// invalid backendPort is replaced by DefaultBackendPort.
func (s *Store) Apply(next Settings) error {
	if next.BackendPort <= 0 || next.BackendPort > 65535 {
		next.BackendPort = DefaultBackendPort
	}

	s.mu.Lock()
	s.settings = next
	data, err := yaml.Marshal(next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	return nil
}

// RequiresRestart reports whether moving from prev to next touches a field
// that only takes effect after a restart: connMode, WiFi credentials, or
// the NeoPixel data pins.
func RequiresRestart(prev, next Settings) bool {
	return prev.ConnMode != next.ConnMode ||
		prev.SSID != next.SSID ||
		prev.Pass != next.Pass ||
		prev.NeoPin1 != next.NeoPin1 ||
		prev.NeoPin2 != next.NeoPin2
}

// Wipe truncates the preferences file and resets to compiled-in defaults.
func (s *Store) Wipe() error {
	s.mu.Lock()
	s.settings = defaults()
	s.mu.Unlock()

	if err := os.WriteFile(s.path, nil, 0o600); err != nil {
		return err
	}
	log.Info("prefs: wiped preferences store")
	return nil
}
