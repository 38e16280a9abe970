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

// registrationFrame is the device-registration outbound frame.
type registrationFrame struct {
	Type      string                `json:"type"`
	Timestamp int64                 `json:"timestamp"`
	DeviceMac string                `json:"deviceMac"`
	Data      registrationFrameData `json:"data"`
}

type registrationFrameData struct {
	DeviceName         string   `json:"deviceName"`
	FirmwareVersion    string   `json:"firmwareVersion"`
	DeviceModel        string   `json:"deviceModel"`
	ConnectionMode     string   `json:"connectionMode"`
	IPAddress          string   `json:"ipAddress"`
	ChipModel          string   `json:"chipModel"`
	ChipRevision       string   `json:"chipRevision"`
	CPUFreqMHz         int      `json:"cpuFreqMHz"`
	FlashSize          int      `json:"flashSize"`
	Library            string   `json:"library"`
	Capabilities       []string `json:"capabilities"`
	SupportedProtocols []string `json:"supportedProtocols"`
}

func (s *Session) buildRegistration() registrationFrame {
	ip, mode := "", ""
	if s.Network != nil {
		ip = s.Network.IPAddress()
		mode = s.Network.ConnectionType()
	}
	return registrationFrame{
		Type:      "device-registration",
		Timestamp: s.now().UnixMilli(),
		DeviceMac: s.Identity.DeviceMac,
		Data: registrationFrameData{
			DeviceName:         s.Identity.DeviceName,
			FirmwareVersion:    s.Identity.FirmwareVersion,
			DeviceModel:        s.Identity.DeviceModel,
			ConnectionMode:     mode,
			IPAddress:          ip,
			ChipModel:          s.Identity.ChipModel,
			ChipRevision:       s.Identity.ChipRevision,
			CPUFreqMHz:         s.Identity.CPUFreqMHz,
			FlashSize:          s.Identity.FlashSize,
			Library:            s.Identity.Library,
			Capabilities:       s.Identity.Capabilities,
			SupportedProtocols: s.Identity.SupportedProtocols,
		},
	}
}

// heartbeatFrame is the periodic heartbeat outbound frame.
type heartbeatFrame struct {
	Type      string             `json:"type"`
	Timestamp int64              `json:"timestamp"`
	DeviceMac string             `json:"deviceMac"`
	Data      heartbeatFrameData `json:"data"`
}

type heartbeatFrameData struct {
	UptimeMs       uint64 `json:"uptimeMs"`
	FreeHeap       uint64 `json:"freeHeap"`
	ConnectionType string `json:"connectionType"`
	WifiRSSI       *int   `json:"wifiRssi,omitempty"`
}

func (s *Session) buildHeartbeat() heartbeatFrame {
	var uptime, freeHeap uint64
	if s.Health != nil {
		uptime = s.Health.UptimeMs()
		freeHeap = s.Health.FreeHeap()
	}
	connType := ""
	var rssi *int
	if s.Network != nil {
		connType = s.Network.ConnectionType()
		if v, ok := s.Network.WifiRSSI(); ok {
			rssi = &v
		}
	}
	return heartbeatFrame{
		Type:      "heartbeat",
		Timestamp: s.now().UnixMilli(),
		DeviceMac: s.Identity.DeviceMac,
		Data: heartbeatFrameData{
			UptimeMs:       uptime,
			FreeHeap:       freeHeap,
			ConnectionType: connType,
			WifiRSSI:       rssi,
		},
	}
}

// healthFrame is the periodic health report outbound frame.
type healthFrame struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	DeviceMac string          `json:"deviceMac"`
	Data      healthFrameData `json:"data"`
}

type healthFrameData struct {
	FreeHeap          uint64  `json:"freeHeap"`
	HeapSize          uint64  `json:"heapSize"`
	MaxAllocHeap      uint64  `json:"maxAllocHeap"`
	UptimeMs          uint64  `json:"uptimeMs"`
	CPUFreqMHz        int     `json:"cpuFreqMHz"`
	ConnectionType    string  `json:"connectionType"`
	IPAddress         string  `json:"ipAddress"`
	MACAddress        string  `json:"macAddress"`
	WifiRSSI          *int    `json:"wifiRssi,omitempty"`
	ChipModel         string  `json:"chipModel"`
	ChipRevision      string  `json:"chipRevision"`
	FlashSize         int     `json:"flashSize"`
	FirmwareVersion   string  `json:"firmwareVersion"`
	ReconnectAttempts int     `json:"reconnectAttempts"`
	IsWelcomeReceived bool    `json:"isWelcomeReceived"`
	IsRegistered      bool    `json:"isRegistered"`
	BatteryPercent    *int    `json:"batteryPercent,omitempty"`
	BatteryVoltage    *float64 `json:"batteryVoltage,omitempty"`
	TemperatureC      *float64 `json:"temperatureC,omitempty"`
}

func (s *Session) buildHealth() healthFrame {
	var freeHeap, heapSize, maxAlloc, uptime uint64
	if s.Health != nil {
		freeHeap = s.Health.FreeHeap()
		heapSize = s.Health.HeapSize()
		maxAlloc = s.Health.MaxAllocHeap()
		uptime = s.Health.UptimeMs()
	}
	ip, connType := "", ""
	var rssi *int
	if s.Network != nil {
		ip = s.Network.IPAddress()
		connType = s.Network.ConnectionType()
		if v, ok := s.Network.WifiRSSI(); ok {
			rssi = &v
		}
	}

	st := s.State()
	return healthFrame{
		Type:      "health",
		Timestamp: s.now().UnixMilli(),
		DeviceMac: s.Identity.DeviceMac,
		Data: healthFrameData{
			FreeHeap:          freeHeap,
			HeapSize:          heapSize,
			MaxAllocHeap:      maxAlloc,
			UptimeMs:          uptime,
			CPUFreqMHz:        s.Identity.CPUFreqMHz,
			ConnectionType:    connType,
			IPAddress:         ip,
			MACAddress:        s.Identity.DeviceMac,
			WifiRSSI:          rssi,
			ChipModel:         s.Identity.ChipModel,
			ChipRevision:      s.Identity.ChipRevision,
			FlashSize:         s.Identity.FlashSize,
			FirmwareVersion:   s.Identity.FirmwareVersion,
			ReconnectAttempts: 0,
			IsWelcomeReceived: st == StateWelcomed || st == StateRegistered,
			IsRegistered:      st == StateRegistered,
		},
	}
}

// espnowStatusFrame is sent in response to espnow-status-request.
type espnowStatusFrame struct {
	Type      string                `json:"type"`
	Timestamp int64                 `json:"timestamp"`
	DeviceMac string                `json:"deviceMac"`
	Data      espnowStatusFrameData `json:"data"`
}

type espnowStatusFrameData struct {
	IsInitialized bool     `json:"isInitialized"`
	PeerCount     int      `json:"peerCount"`
	OnlinePeers   []string `json:"onlinePeers"`
	OfflinePeers  []string `json:"offlinePeers"`
	DegradedPeers []string `json:"degradedPeers"`
}

func (s *Session) buildEspnowStatus() espnowStatusFrame {
	var initialized bool
	var online, offline []string
	if s.Peers != nil {
		initialized = s.Peers.Initialized()
		online = s.Peers.OnlinePeers()
		offline = s.Peers.OfflinePeers()
	}
	return espnowStatusFrame{
		Type:      "espnow-status",
		Timestamp: s.now().UnixMilli(),
		DeviceMac: s.Identity.DeviceMac,
		Data: espnowStatusFrameData{
			IsInitialized: initialized,
			PeerCount:     len(online) + len(offline),
			OnlinePeers:   online,
			OfflinePeers:  offline,
			DegradedPeers: []string{},
		},
	}
}
