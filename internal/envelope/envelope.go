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
Package envelope implements the tagged document classifier and dispatcher
: it parses a complete frame payload into a bounded document,
decides between a gateway forward and local routing by `type`, and hands
the result to the queues, the peer radio manager, or the broker client.
*/
package envelope

import (
	"encoding/json"
	"fmt"
)

// Known envelope types.
const (
	TypeConfig               = "config"
	TypeSensor                = "sensor"
	TypeMQTTSubscribeRequest  = "MQTT_Subscription_Request"
	TypeWipePreferences       = "wipe_preferences"
	TypeWipePreferencesReply  = "wipe_preferences_response"
	TypeWelcome               = "welcome"
	TypeDeviceRegistrationAck = "device-registration-ack"
	TypeHealthRequest         = "health-request"
	TypeHeartbeatAck          = "heartbeat-ack"
	TypeHealthAck             = "health-ack"
	TypeConfigAck             = "config-ack"
	TypeError                 = "error"
	TypeESPNowStatusRequest   = "espnow-status-request"
	TypeESPNowStatusAck       = "espnow-status-ack"
)

// Document is a parsed, tagged JSON envelope. Renderer-specific payload
// fields pass through untouched; the core only ever reads the fields named
// below.
type Document map[string]any

// Parse decodes a complete frame payload into a Document. Payloads larger
// than frame.MaxPayloadSize are already rejected at the frame layer; Parse
// additionally requires a non-empty "type" field.
func Parse(payload []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	if doc.Type() == "" {
		return nil, fmt.Errorf("envelope: missing required \"type\" field")
	}
	return doc, nil
}

// Type returns the envelope's "type" field, or "" if absent or not a string.
func (d Document) Type() string {
	return d.stringField("type")
}

// Destination returns the "destination" MAC field, or "" if absent.
func (d Document) Destination() string {
	return d.stringField("destination")
}

// ScreenID returns the "screenId" field, or "" if absent.
func (d Document) ScreenID() string {
	return d.stringField("screenId")
}

// Subscriptions returns the "subscriptions" array as a string slice,
// ignoring non-string entries.
func (d Document) Subscriptions() []string {
	raw, ok := d["subscriptions"].([]any)
	if !ok {
		return nil
	}
	subs := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			subs = append(subs, s)
		}
	}
	return subs
}

// Clone returns a deep copy of the document, suitable for handing to a
// queue whose producer immediately reuses its source buffer.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// WithoutDestination returns a copy of d with the "destination" field
// removed, ready to re-serialize for a gateway forward.
func (d Document) WithoutDestination() Document {
	out := d.Clone()
	delete(out, "destination")
	return out
}

func (d Document) stringField(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}
