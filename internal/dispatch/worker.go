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
Package dispatch implements the two dispatch workers: one sole
consumer of the sensor queue, one sole consumer of the config queue. Each
worker isolates renderer failures (errors and panics) per document; a
failure never stops the worker loop.
*/
package dispatch

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/junctionrelay/relaycore/internal/envelope"
	"github.com/junctionrelay/relaycore/internal/queue"
	"github.com/junctionrelay/relaycore/internal/renderer"
)

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// SensorWorker is the sole consumer of the sensor queue.
type SensorWorker struct {
	Queue    *queue.Queue[envelope.Document]
	Renderer renderer.Renderer
}

// Run pops documents until ctx is done or the queue is closed.
func (w *SensorWorker) Run(ctx context.Context) {
	for {
		doc, ok := w.Queue.Pop(ctx)
		if !ok {
			return
		}
		w.handle(doc)
	}
}

func (w *SensorWorker) handle(doc envelope.Document) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dispatch: sensor renderer panicked on document: %v", r)
		}
	}()
	if err := w.Renderer.RouteSensor(doc); err != nil {
		log.Errorf("dispatch: sensor route failed: %v", err)
	}
}

// ConfigWorker is the sole consumer of the config queue.
type ConfigWorker struct {
	Queue    *queue.Queue[envelope.Document]
	Renderer renderer.Renderer
	State    *ConfigState
	Now      Clock
}

// Run pops documents until ctx is done or the queue is closed.
func (w *ConfigWorker) Run(ctx context.Context) {
	for {
		doc, ok := w.Queue.Pop(ctx)
		if !ok {
			return
		}
		w.handle(doc)
	}
}

func (w *ConfigWorker) handle(doc envelope.Document) {
	failed := w.route(doc)
	if failed {
		w.fallback()
		return
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	w.State.markReceived(now())
}

// route applies doc to the renderer, isolating both errors and panics.
// It returns true on any renderer failure, which triggers the fallback
// path.
func (w *ConfigWorker) route(doc envelope.Document) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dispatch: config renderer panicked: %v", r)
			failed = true
		}
	}()

	if screenID := doc.ScreenID(); screenID != "" {
		if err := w.Renderer.RegisterScreen(renderer.ScreenDescriptor{ScreenID: screenID}); err != nil {
			log.Errorf("dispatch: register screen %q failed: %v", screenID, err)
		}
	}

	if err := w.Renderer.RouteConfig(doc); err != nil {
		log.Errorf("dispatch: config route failed: %v", err)
		return true
	}
	return false
}

func (w *ConfigWorker) fallback() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("dispatch: fallback config route panicked: %v", r)
		}
	}()
	if err := w.Renderer.RouteConfig(envelope.Document{}); err != nil {
		log.Errorf("dispatch: fallback config route failed: %v", err)
	}
}
