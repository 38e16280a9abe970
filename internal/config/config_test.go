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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, defaults(), cfg)
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connMode: gateway\nbackendPort: 9000\ninterface: eth0\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gateway", cfg.ConnMode)
	require.Equal(t, 9000, cfg.BackendPort)
	require.Equal(t, "eth0", cfg.Interface)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestResolvePrimaryProtocol(t *testing.T) {
	require.Equal(t, ProtocolESPNow, ResolvePrimaryProtocol("espnow"))
	require.Equal(t, ProtocolGateway, ResolvePrimaryProtocol("gateway"))
	require.Equal(t, ProtocolWebSocketHTTP, ResolvePrimaryProtocol("wifi"))
	require.Equal(t, ProtocolWebSocketHTTP, ResolvePrimaryProtocol("ethernet"))
	require.Equal(t, ProtocolWebSocketHTTP, ResolvePrimaryProtocol(""))
}
