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
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// candidateHostSuffixes are tried in order against the active /24 subnet
// when no backend IP is configured.
var candidateHostSuffixes = []int{2, 1, 100, 10, 22}

const probeTimeout = 2 * time.Second

// DiscoverBackend probes the local subnet for a backend server, returning
// the first candidate whose /api/health/heartbeat responds with either
// HTTP 200 or a body containing `"status":"OK"`.
func DiscoverBackend(localIP string, port int) (string, error) {
	base, err := subnetBase(localIP)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: probeTimeout}
	for _, suffix := range candidateHostSuffixes {
		host := fmt.Sprintf("%s.%d", base, suffix)
		url := fmt.Sprintf("http://%s:%d/api/health/heartbeat", host, port)

		resp, err := client.Get(url)
		if err != nil {
			log.Debugf("uplink: discovery probe %s failed: %v", host, err)
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK || strings.Contains(string(body), `"status":"OK"`) {
			return host, nil
		}
	}
	return "", fmt.Errorf("uplink: no backend found among %d candidates", len(candidateHostSuffixes))
}

func subnetBase(ip string) (string, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "", fmt.Errorf("uplink: %q is not a dotted-quad IPv4 address", ip)
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return "", fmt.Errorf("uplink: %q is not a dotted-quad IPv4 address", ip)
		}
	}
	return strings.Join(parts[:3], "."), nil
}

// LocalIPv4 returns the non-loopback IPv4 address of the active
// interface, used to derive the discovery subnet.
func LocalIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		return v4.String(), nil
	}
	return "", fmt.Errorf("uplink: no non-loopback IPv4 address found")
}
