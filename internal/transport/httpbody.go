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

package transport

import (
	"io"

	"github.com/junctionrelay/relaycore/internal/frame"
)

// HTTPBody treats a streamed HTTP request body as a byte source, reusing
// the same frame.Parser as every other ingress transport.
type HTTPBody struct {
	parser *frame.Parser
	sink   FrameSink
}

// NewHTTPBody returns an adapter that feeds r's body through a fresh
// frame.Parser.
func NewHTTPBody(sink FrameSink) *HTTPBody {
	return &HTTPBody{parser: frame.NewParser(), sink: sink}
}

// Consume reads r to completion, dispatching every complete frame to
// sink. A partial final chunk with no terminating frame is silently
// retained in the parser and discarded when Consume returns, since an
// HTTP body has a definite end.
func (h *HTTPBody) Consume(r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, payload := range h.parser.Feed(buf[:n]) {
				if h.sink != nil {
					h.sink(payload)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
