// Copyright 2024 The Restbridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connector

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"
)

// ClosingStrategy decides what happens to the underlying connection when a
// response's entity stream is closed. The body passed in is the raw
// transport stream; the strategy owns closing it.
type ClosingStrategy func(body io.ReadCloser) error

// GracefulClosing drains the remainder of the body before closing it, which
// lets the transport return the connection to its pool for reuse. The drain
// is capped so a huge unread body cannot stall the close.
func GracefulClosing(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	return body.Close()
}

// ImmediateClosing closes the body without draining it. The transport will
// typically discard the connection instead of reusing it.
func ImmediateClosing(body io.ReadCloser) error {
	return body.Close()
}

const maxDrainBytes = 1 << 20

// Response is the uniform inbound response. The entity stream is lazily
// consumable exactly once; closing it releases the underlying connection
// through the connector's closing strategy, whether or not it was fully
// read.
type Response struct {
	StatusCode int
	Reason     string
	Header     http.Header

	body io.ReadCloser
}

// Body returns the entity stream. Callers must close it.
func (r *Response) Body() io.ReadCloser {
	if r.body == nil {
		return noBody{}
	}
	return r.body
}

// Close closes the entity stream. Safe to call any number of times and
// concurrently; the closing strategy runs exactly once.
func (r *Response) Close() error {
	if r.body == nil {
		return nil
	}
	return r.body.Close()
}

// Buffer reads the remaining entity into memory, closes the underlying
// stream through the closing strategy, and replaces the entity stream with
// the in-memory copy, so the response stays readable after the connection
// has been released.
func (r *Response) Buffer() error {
	if r.body == nil {
		return nil
	}
	content, err := io.ReadAll(r.body)
	closeErr := r.body.Close()
	if err != nil {
		return err
	}
	r.body = io.NopCloser(bytes.NewReader(content))
	return closeErr
}

type noBody struct{}

func (noBody) Read([]byte) (int, error) { return 0, io.EOF }
func (noBody) Close() error             { return nil }

// closingBody runs a closing strategy exactly once, no matter how many
// goroutines race on Close. An "already closed" failure from the underlying
// stream is never observed because later calls do not reach it.
type closingBody struct {
	raw     io.ReadCloser
	onClose func(io.ReadCloser) error

	closed   atomic.Bool
	closeErr error
}

func newClosingBody(raw io.ReadCloser, strategy ClosingStrategy) *closingBody {
	if strategy == nil {
		strategy = GracefulClosing
	}
	return &closingBody{raw: raw, onClose: func(r io.ReadCloser) error { return strategy(r) }}
}

func (b *closingBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.raw.Read(p)
}

func (b *closingBody) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.closeErr = b.onClose(b.raw)
	return b.closeErr
}
