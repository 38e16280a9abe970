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
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/shirou/gopsutil/process"
)

// RuntimeHealth implements HealthProvider from process/runtime stats,
// reporting the generic heap facts the uplink health frame needs.
type RuntimeHealth struct {
	startedAt time.Time
	proc      *process.Process
}

// NewRuntimeHealth constructs a HealthProvider for the current process.
func NewRuntimeHealth() *RuntimeHealth {
	h := &RuntimeHealth{startedAt: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.proc = proc
	} else {
		log.Warnf("uplink: process stats unavailable: %v", err)
	}
	return h
}

// FreeHeap returns bytes of heap memory not currently in use.
func (h *RuntimeHealth) FreeHeap() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapIdle
}

// HeapSize returns the process resident set size when gopsutil process
// stats are available, falling back to the Go runtime's heap-from-OS
// figure otherwise.
func (h *RuntimeHealth) HeapSize() uint64 {
	if h.proc != nil {
		if mem, err := h.proc.MemoryInfo(); err == nil {
			return mem.RSS
		}
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapSys
}

// MaxAllocHeap returns the largest contiguous allocation watermark
// available; no cross-platform syscall reports this directly, so this
// reports current heap-in-use as the closest generic proxy.
func (h *RuntimeHealth) MaxAllocHeap() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}

// UptimeMs returns process uptime in milliseconds.
func (h *RuntimeHealth) UptimeMs() uint64 {
	return uint64(time.Since(h.startedAt).Milliseconds())
}
