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
Package broker implements the optional MQTT pub/sub channel. It
reconnects independently of any primary transport, publishes outbound
documents on a fixed topic, and subscribes to topics on demand.
*/
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// PublishTopic is the fixed outbound topic.
const PublishTopic = "junctionrelay/data"

const defaultPort = 1883

// reconnectInterval is how often Client attempts to reconnect while the
// network is up and it is disconnected.
const reconnectInterval = time.Second

// NetworkChecker reports whether any IP network (WiFi or ethernet) is
// currently available.
type NetworkChecker interface {
	NetworkUp() bool
}

// InboundHandler receives the raw payload of every message delivered on a
// subscribed topic, to be fed back through the frame/envelope pipeline.
type InboundHandler func(topic string, payload []byte)

// Client owns the paho MQTT client and its independent reconnect loop.
type Client struct {
	broker  string
	clientID string
	network NetworkChecker
	onMsg   InboundHandler

	mu     sync.Mutex
	client mqtt.Client
	subs   map[string]bool
}

// Config describes how to reach the broker.
type Config struct {
	// Addr is "host" or "host:port"; an absent port defaults to 1883.
	Addr     string
	ClientID string
}

// New constructs a Client. It does not connect until Run is called. Addr
// may be empty, in which case Run never connects and only waits for its
// context to be canceled: the broker channel is optional.
func New(cfg Config, network NetworkChecker, onMsg InboundHandler) *Client {
	return &Client{
		broker:   normalizeAddr(cfg.Addr),
		clientID: cfg.ClientID,
		network:  network,
		onMsg:    onMsg,
		subs:     make(map[string]bool),
	}
}

func normalizeAddr(addr string) string {
	if addr == "" {
		return ""
	}
	host, port, err := splitHostPort(addr)
	if err != nil {
		return addr
	}
	if port == "" {
		port = fmt.Sprintf("%d", defaultPort)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port)
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return addr, "", nil
}

// Configured reports whether a broker address was supplied.
func (c *Client) Configured() bool {
	return c.broker != ""
}

// Connected reports whether the underlying client currently holds a live
// connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// Run drives the independent reconnect loop: while the
// network is up and the client disconnected, attempt a reconnect once per
// reconnectInterval; while the network is down, do nothing. Run blocks
// until ctx is canceled.
func (c *Client) Run(ctx context.Context) {
	if !c.Configured() {
		log.Debug("broker: no address configured, channel disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.disconnect()
			return
		case <-ticker.C:
			if !c.network.NetworkUp() {
				continue
			}
			if c.Connected() {
				continue
			}
			c.connect()
		}
	}
}

func (c *Client) connect() {
	opts := mqtt.NewClientOptions().AddBroker(c.broker)
	if c.clientID != "" {
		opts.SetClientID(c.clientID)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false) // Run drives reconnects explicitly
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		log.Infof("broker: connected to %s", c.broker)
		c.resubscribeAll(cl)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("broker: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		log.Warnf("broker: connect attempt to %s failed: %v", c.broker, token.Error())
		return
	}

	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}

func (c *Client) disconnect() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(250)
	}
}

func (c *Client) resubscribeAll(cl mqtt.Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.subs))
	for t := range c.subs {
		topics = append(topics, t)
	}
	c.mu.Unlock()
	for _, t := range topics {
		c.subscribeOn(cl, t)
	}
}

// Subscribe requests a broker subscription to topic, per an incoming
// MQTT_Subscription_Request envelope. The request is
// remembered so it survives reconnects; if currently disconnected it
// takes effect on the next successful connect.
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	c.subs[topic] = true
	client := c.client
	c.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		c.subscribeOn(client, topic)
	}
}

func (c *Client) subscribeOn(cl mqtt.Client, topic string) {
	token := cl.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		if c.onMsg != nil {
			c.onMsg(m.Topic(), m.Payload())
		}
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		log.Warnf("broker: subscribe to %s failed: %v", topic, token.Error())
	}
}

// Publish sends payload on the fixed outbound topic. It is a no-op error
// when disconnected; the broker channel never gates local dispatch.
func (c *Client) Publish(payload []byte) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return fmt.Errorf("broker: not connected")
	}
	token := client.Publish(PublishTopic, 1, false, payload)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("broker: publish failed: %w", token.Error())
	}
	return nil
}
