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

// Package wire defines the contract between the restbridge connector and an
// underlying HTTP transport. A transport executes a single prepared request
// either by blocking until the full response is available (Send) or by
// delivering a strictly ordered sequence of events to a listener (SendAsync).
//
// Events for one exchange are always ordered Headers, zero or more Data,
// then exactly one of Complete or Failure. A transport must never deliver
// events for the same exchange concurrently.
package wire

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// EventKind discriminates the variants of an Event.
type EventKind int

const (
	// EventHeaders carries the response status line and headers. It is
	// always the first event of an exchange.
	EventHeaders EventKind = iota + 1
	// EventData carries a chunk of the response body. The chunk is only
	// valid for the duration of the listener call.
	EventData
	// EventComplete terminates a successful exchange.
	EventComplete
	// EventFailure terminates a failed exchange.
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventHeaders:
		return "headers"
	case EventData:
		return "data"
	case EventComplete:
		return "complete"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is a single transport notification. Which fields are meaningful
// depends on Kind.
type Event struct {
	Kind   EventKind
	Status int         // EventHeaders
	Reason string      // EventHeaders; may be empty
	Header http.Header // EventHeaders
	Chunk  []byte      // EventData; not retained after the listener returns
	Err    error       // EventFailure
}

// Listener receives the event sequence of a single asynchronous exchange.
// A transport invokes the listener from at most one goroutine at a time.
type Listener func(Event)

// Request is a transport-native request, produced by the connector's
// translation step. The transport must not mutate it.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header

	// Body supplies the request entity, or nil when there is none. The
	// transport consumes it exactly once and closes it.
	Body io.ReadCloser

	// GetBody, when non-nil, re-creates the body so the transport may
	// replay it (redirects, authentication challenges). Only set for
	// buffered entities.
	GetBody func() (io.ReadCloser, error)

	// ContentLength is the entity length in bytes, or -1 when unknown, in
	// which case the transport uses chunked transfer encoding.
	ContentLength int64

	// ConnectTimeout and ReadTimeout override the transport defaults for
	// this exchange only. Zero means "use the transport default".
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// FollowRedirects controls redirect handling for this exchange.
	FollowRedirects bool
}

// Response is a transport-native response. Reason may be empty when the
// transport did not surface a reason phrase.
type Response struct {
	Status int
	Reason string
	Header http.Header
	Body   io.ReadCloser

	// ContentLength is the entity length reported by the transport, or -1
	// when unknown. It may be absent from Header, for example on HTTP/2
	// responses.
	ContentLength int64
}

// Exchange is a handle on an in-flight asynchronous send.
type Exchange interface {
	// Abort makes a best-effort attempt to stop the exchange so that
	// server-side resources are released. The transport terminates the
	// event sequence with a Failure carrying the given cause, unless a
	// terminal event was already delivered.
	Abort(cause error)
}

// Transport executes prepared requests. Implementations own connection
// pooling, TLS, proxying and retries; they must be safe for concurrent use.
type Transport interface {
	// Send performs the exchange on the calling goroutine, blocking until
	// the response headers are available or the exchange fails. The
	// response body streams from the connection; closing it releases the
	// connection.
	Send(ctx context.Context, req *Request) (*Response, error)

	// SendAsync starts the exchange and returns immediately. All results,
	// including failure to even start, are delivered through the listener.
	SendAsync(ctx context.Context, req *Request, listener Listener) Exchange

	// Name identifies the transport implementation.
	Name() string

	// Close releases pooled connections and background resources.
	Close() error
}
