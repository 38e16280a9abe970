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
Package renderer defines the contract the core depends on for display
rendering. Rendering algorithms and hardware driver details are out of
scope; this package only specifies the shape external consumers of the
config/sensor queues must implement.
*/
package renderer

import "github.com/junctionrelay/relaycore/internal/envelope"

// ScreenDescriptor identifies a logical display to be registered before
// config payloads addressed to it are routed.
type ScreenDescriptor struct {
	ScreenID string
}

// Renderer is implemented by the external display subsystem. All methods
// may be called concurrently from the dispatch workers but never from
// more than one worker at a time per queue.
type Renderer interface {
	// RegisterScreen idempotently adds a display to the routing table.
	RegisterScreen(d ScreenDescriptor) error

	// RouteConfig applies a configuration payload. Implementations may
	// call RegisterScreen on first sight of a new screenId.
	RouteConfig(doc envelope.Document) error

	// RouteSensor applies a sensor update. Must return within a low
	// tens-of-milliseconds budget; it is invoked from the sole sensor
	// dispatch worker and must never block on network I/O.
	RouteSensor(doc envelope.Document) error
}

// NopRenderer is a reference Renderer that only logs; used by tests and as
// a safe default before a real renderer is wired in.
type NopRenderer struct{}

// RegisterScreen implements Renderer.
func (NopRenderer) RegisterScreen(ScreenDescriptor) error { return nil }

// RouteConfig implements Renderer.
func (NopRenderer) RouteConfig(envelope.Document) error { return nil }

// RouteSensor implements Renderer.
func (NopRenderer) RouteSensor(envelope.Document) error { return nil }
