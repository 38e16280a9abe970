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
Package frame decodes a byte stream of arbitrary-sized chunks into complete
JSON payload frames. Frames arrive either as an 8-ASCII-digit zero-padded
length prefix followed by that many payload bytes, or as a bare JSON object
whose first byte is '{'. Parser failures never propagate: they are logged
and the parser resynchronizes on the next chunk.
*/
package frame

import (
	"strconv"

	log "github.com/sirupsen/logrus"
)

const (
	// MaxPayloadSize is the largest payload a single frame may carry.
	MaxPayloadSize = 8192
	// PrefixLen is the width of the ASCII decimal length prefix.
	PrefixLen = 8
)

type state int

const (
	stateAwaitingPrefix state = iota
	stateAccumulating
)

// Parser decodes one ingress byte stream into complete frames. It holds a
// fixed prefix buffer and a MaxPayloadSize-capped payload buffer, reused
// across frames. A Parser is owned by exactly one ingress task and is not
// safe for concurrent use; create one per transport connection.
type Parser struct {
	state state

	prefix    [PrefixLen]byte
	prefixLen int

	payload    []byte
	payloadLen int
	expected   int
}

// NewParser returns a Parser ready to decode a fresh byte stream.
func NewParser() *Parser {
	return &Parser{payload: make([]byte, MaxPayloadSize)}
}

// Feed consumes one arrival of bytes and returns zero or more complete
// frame payloads, in arrival order. Returned slices are copies owned by the
// caller; the input slice may be reused immediately after Feed returns.
func (p *Parser) Feed(data []byte) [][]byte {
	var frames [][]byte
	i := 0
	for i < len(data) {
		switch p.state {
		case stateAwaitingPrefix:
			if p.prefixLen == 0 && data[i] == '{' {
				f := make([]byte, len(data)-i)
				copy(f, data[i:])
				return append(frames, f)
			}

			n := copy(p.prefix[p.prefixLen:], data[i:])
			p.prefixLen += n
			i += n

			if p.prefixLen < PrefixLen {
				break
			}

			length, ok := parseLength(p.prefix[:])
			if !ok || length <= 0 || length > MaxPayloadSize {
				log.Errorf("frame: malformed length prefix %q, resynchronizing", p.prefix[:])
				p.reset()
				return frames
			}

			p.expected = length
			p.payloadLen = 0
			p.state = stateAccumulating

		case stateAccumulating:
			remaining := p.expected - p.payloadLen
			n := copy(p.payload[p.payloadLen:p.payloadLen+remaining], data[i:])
			p.payloadLen += n
			i += n

			if p.payloadLen < p.expected {
				break
			}

			f := make([]byte, p.expected)
			copy(f, p.payload[:p.expected])
			frames = append(frames, f)
			p.reset()
		}
	}
	return frames
}

// reset returns the parser to its initial state, discarding any partially
// accumulated prefix or payload. Used both for the happy path (after a
// frame is emitted) and for resynchronization after a malformed prefix.
func (p *Parser) reset() {
	p.state = stateAwaitingPrefix
	p.prefixLen = 0
	p.payloadLen = 0
	p.expected = 0
}

func parseLength(prefix []byte) (int, bool) {
	for _, b := range prefix {
		if b < '0' || b > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
