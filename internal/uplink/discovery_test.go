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
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubnetBaseRejectsMalformedIP(t *testing.T) {
	_, err := subnetBase("not-an-ip")
	require.Error(t, err)

	_, err = subnetBase("1.2.3")
	require.Error(t, err)
}

func TestSubnetBaseStripsLastOctet(t *testing.T) {
	base, err := subnetBase("192.168.1.42")
	require.NoError(t, err)
	require.Equal(t, "192.168.1", base)
}

// listenOnCandidate binds a loopback listener on the given candidate
// suffix within the 127.0.0.0/8 subnet so DiscoverBackend's probe of
// "127.0.0.<suffix>:<port>" reaches a real handler.
func listenOnCandidate(t *testing.T, suffix int, handler http.HandlerFunc) (port int, stop func()) {
	t.Helper()
	addr := fmt.Sprintf("127.0.0.%d:0", suffix)
	lis, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(lis)
	return lis.Addr().(*net.TCPAddr).Port, func() { lis.Close() }
}

func TestDiscoverBackendAcceptsOKStatusWithWrongBody(t *testing.T) {
	// Second candidate suffix is 1, per candidateHostSuffixes.
	port, stop := listenOnCandidate(t, 1, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"unexpected":"shape"}`))
	})
	defer stop()

	host, err := DiscoverBackend("127.0.0.5", port)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
}

func TestDiscoverBackendAcceptsOKBodyWithNon200Status(t *testing.T) {
	port, stop := listenOnCandidate(t, 1, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"OK"}`))
	})
	defer stop()

	host, err := DiscoverBackend("127.0.0.5", port)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", host)
}

func TestDiscoverBackendErrorsWhenNoCandidateMatches(t *testing.T) {
	port, stop := listenOnCandidate(t, 1, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"unexpected":"shape"}`))
	})
	defer stop()

	_, err := DiscoverBackend("127.0.0.5", port)
	require.Error(t, err)
}
