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
Package config implements node bootstrap configuration: the
static, operator-supplied NodeConfig read once at startup, separate from
the runtime-mutable preferences store. It also resolves the derived
Primary Protocol from a connection mode string.
*/
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// PrimaryProtocol is the transport the uplink/dispatch paths are built
// around, derived from ConnMode at init.
type PrimaryProtocol string

const (
	ProtocolWebSocketHTTP PrimaryProtocol = "WEBSOCKET_HTTP"
	ProtocolESPNow        PrimaryProtocol = "ESPNOW"
	ProtocolGateway       PrimaryProtocol = "GATEWAY"
)

// ResolvePrimaryProtocol derives the Primary Protocol from a persisted
// connMode value.
func ResolvePrimaryProtocol(connMode string) PrimaryProtocol {
	switch connMode {
	case "espnow":
		return ProtocolESPNow
	case "gateway":
		return ProtocolGateway
	default:
		return ProtocolWebSocketHTTP
	}
}

// NodeConfig is the static bootstrap configuration read once at startup.
// It is distinct from prefs.Settings: NodeConfig names the host
// environment (serial device, preferences file path, monitoring port);
// prefs.Settings names the runtime-mutable, admin-editable state.
type NodeConfig struct {
	// ConnMode seeds the preferences store on first boot when no
	// preferences file exists yet.
	ConnMode string `yaml:"connMode"`
	SSID     string `yaml:"ssid"`
	Pass     string `yaml:"pass"`

	MQTTBroker string `yaml:"mqttBroker"`

	BackendPort int `yaml:"backendPort"`

	Interface string `yaml:"interface"`

	Rotation      int  `yaml:"rotation"`
	SwapBlueGreen bool `yaml:"swapBlueGreen"`
	NeoPin1       int  `yaml:"neoPin1"`
	NeoPin2       int  `yaml:"neoPin2"`

	LogLevel string `yaml:"logLevel"`

	MonitoringPort int `yaml:"monitoringPort"`

	PreferencesPath string `yaml:"preferencesPath"`
	SerialDevice    string `yaml:"serialDevice"`
	SerialBaud      int    `yaml:"serialBaud"`
}

func defaults() NodeConfig {
	return NodeConfig{
		ConnMode:        "wifi",
		BackendPort:     7180,
		LogLevel:        "info",
		MonitoringPort:  8080,
		PreferencesPath: "/etc/relaycore/preferences.yaml",
		SerialBaud:      115200,
	}
}

// Load reads a NodeConfig from path, falling back to compiled-in defaults
// for any field the file omits. A missing file yields pure defaults.
func Load(path string) (NodeConfig, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}
