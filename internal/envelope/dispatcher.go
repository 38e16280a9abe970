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

package envelope

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"
)

// PeerForwarder is the subset of the peer radio manager the dispatcher
// needs to forward gateway-addressed documents.
type PeerForwarder interface {
	Initialized() bool
	Send(mac string, payload []byte) error
}

// BrokerSubscriber is the subset of the broker client the dispatcher
// needs to act on subscription requests.
type BrokerSubscriber interface {
	Subscribe(topic string)
}

// PreferencesWiper is the subset of the preferences store the dispatcher
// needs for wipe_preferences.
type PreferencesWiper interface {
	Wipe() error
}

// Restarter schedules a device restart after the given delay.
type Restarter interface {
	ScheduleRestart(after time.Duration)
}

// ConfigStateResetter clears the "config received" state tracked by the
// config dispatch worker; wipe_preferences resets it.
type ConfigStateResetter interface {
	Reset()
}

// Queue is the subset of queue.Queue[Document] the dispatcher pushes into.
type Queue interface {
	Push(Document) bool
}

// ReplyFunc sends bytes back on the channel an envelope arrived on. It is
// best-effort: the wipe_preferences response is sent if possible but its
// failure does not affect the wipe itself.
type ReplyFunc func([]byte) error

// Dispatcher implements the message classifier and dispatcher.
type Dispatcher struct {
	Sensor Queue
	Config Queue

	Peers     PeerForwarder
	Broker    BrokerSubscriber
	Prefs     PreferencesWiper
	Restart   Restarter
	ConfigSt  ConfigStateResetter
	OnDrop    func(queueName string)
}

// Dispatch classifies a complete frame payload and routes it either to a
// gateway forward or to local handling. reply may be nil if the
// originating transport has no return channel (e.g. a fire-and-forget
// serial link).
func (d *Dispatcher) Dispatch(payload []byte, reply ReplyFunc) {
	doc, err := Parse(payload)
	if err != nil {
		log.Errorf("envelope: discarding unparsable payload: %v", err)
		return
	}

	if dest := doc.Destination(); dest != "" {
		d.forward(doc, dest)
		return
	}

	switch doc.Type() {
	case TypeSensor:
		if !d.Sensor.Push(doc.Clone()) {
			log.Warnf("envelope: sensor queue full, dropping document")
			if d.OnDrop != nil {
				d.OnDrop("sensor")
			}
		}
	case TypeConfig:
		if !d.Config.Push(doc.Clone()) {
			log.Warnf("envelope: config queue full, dropping document")
			if d.OnDrop != nil {
				d.OnDrop("config")
			}
		}
	case TypeMQTTSubscribeRequest:
		d.subscribe(doc)
	case TypeWipePreferences:
		d.wipe(reply)
	default:
		log.Debugf("envelope: ignoring unknown type %q", doc.Type())
	}
}

// forward implements the gateway forwarding rule: a
// destination-addressed document is removed of its destination field,
// re-serialized, and handed to the peer radio manager as a unicast send.
// It is never processed locally, successful or not.
func (d *Dispatcher) forward(doc Document, dest string) {
	if d.Peers == nil || !d.Peers.Initialized() {
		log.Warnf("envelope: dropping message for %s, peer radio unavailable", dest)
		return
	}

	stripped := doc.WithoutDestination()
	b, err := json.Marshal(stripped)
	if err != nil {
		log.Errorf("envelope: failed to re-serialize forward for %s: %v", dest, err)
		return
	}

	if err := d.Peers.Send(dest, b); err != nil {
		log.Errorf("envelope: forward to %s failed: %v", dest, err)
		return
	}
}

func (d *Dispatcher) subscribe(doc Document) {
	if d.Broker == nil {
		return
	}
	for _, topic := range doc.Subscriptions() {
		d.Broker.Subscribe(topic)
	}
}

func (d *Dispatcher) wipe(reply ReplyFunc) {
	success := true
	if d.Prefs != nil {
		if err := d.Prefs.Wipe(); err != nil {
			log.Errorf("envelope: wipe_preferences failed: %v", err)
			success = false
		}
	}
	if d.ConfigSt != nil {
		d.ConfigSt.Reset()
	}

	resp := Document{"type": TypeWipePreferencesReply, "success": success}
	if reply != nil {
		b, err := json.Marshal(resp)
		if err != nil {
			log.Errorf("envelope: failed to encode wipe response: %v", err)
		} else if err := reply(b); err != nil {
			log.Warnf("envelope: best-effort wipe response delivery failed: %v", err)
		}
	}

	if d.Restart != nil {
		d.Restart.ScheduleRestart(3 * time.Second)
	}
}
