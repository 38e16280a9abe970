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
Package transport implements the ingress transport adapters:
thin readers that feed arbitrary-sized byte chunks into a frame.Parser
and hand complete frames to the dispatcher, one execution context each.
*/
package transport

import (
	"go.bug.st/serial"

	log "github.com/sirupsen/logrus"

	"github.com/junctionrelay/relaycore/internal/frame"
)

// FrameSink receives one complete frame payload at a time.
type FrameSink func(payload []byte)

// Serial wires a serial device as a framed ingress/egress transport,
// generalized from a command/answer read loop to plain
// length-prefixed/bare-JSON frame payloads.
type Serial struct {
	device string
	baud   int
	port   serial.Port
	parser *frame.Parser
	sink   FrameSink
}

// OpenSerial opens device at baud and returns a ready-to-run transport.
func OpenSerial(device string, baud int, sink FrameSink) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return &Serial{
		device: device,
		baud:   baud,
		port:   port,
		parser: frame.NewParser(),
		sink:   sink,
	}, nil
}

// Write sends payload out over the serial link unframed; callers are
// responsible for any prefixing the far end expects.
func (s *Serial) Write(payload []byte) (int, error) {
	return s.port.Write(payload)
}

// Close releases the underlying serial port.
func (s *Serial) Close() error {
	return s.port.Close()
}

// Run reads from the serial port until it errors or closes, feeding
// every chunk through the frame parser and dispatching complete frames
// to sink.
func (s *Serial) Run() error {
	buf := make([]byte, frame.MaxPayloadSize+frame.PrefixLen)
	for {
		n, err := s.port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		for _, payload := range s.parser.Feed(buf[:n]) {
			if s.sink != nil {
				s.sink(payload)
			}
		}
		log.Tracef("transport/serial: %s read %d bytes", s.device, n)
	}
}
