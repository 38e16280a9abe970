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
	"context"

	"github.com/gorilla/websocket"
)

// WSDialer is the production Dialer, backed by gorilla/websocket.
type WSDialer struct {
	Dialer websocket.Dialer
}

// NewWSDialer returns a Dialer with gorilla's zero-value settings. It sets
// no handshake timeout of its own; Dial is bounded only by its ctx.
func NewWSDialer() *WSDialer {
	return &WSDialer{Dialer: websocket.Dialer{}}
}

// Dial opens a WebSocket connection to url.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *wsConn) WriteMessage(messageType int, payload []byte) error {
	return c.conn.WriteMessage(messageType, payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
