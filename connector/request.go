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
	"net/http"
	"net/url"
	"time"
)

// Buffering selects how a request entity is handed to the transport.
type Buffering int

const (
	// BufferingDefault defers to the connector's configured default.
	BufferingDefault Buffering = iota
	// Buffered serializes the entity into memory before the exchange
	// starts. The body can be replayed, so redirects and authentication
	// challenges work transparently.
	Buffered
	// Streamed serializes the entity into a pipe that the transport
	// drains while the exchange is in flight (chunked transfer). Lower
	// memory footprint, but the body cannot be replayed.
	Streamed
)

// Request is an abstract outbound request. The caller owns it until it is
// handed to a connector; the connector takes a private copy before any
// mutation, so a caller may keep reusing the same value.
type Request struct {
	Method string
	URL    *url.URL

	// Header holds the outbound headers. Multiple values per name are
	// preserved in insertion order.
	Header http.Header

	// Entity is the request body, or nil when there is none.
	Entity Entity

	// ConnectTimeout and ReadTimeout, when positive, override the
	// transport defaults for this invocation only.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// FollowRedirects overrides redirect handling for this invocation.
	// Nil means the default, which is to follow.
	FollowRedirects *bool

	// Buffering overrides the connector's entity buffering mode.
	Buffering Buffering

	// SuppressValidation overrides the client-wide compliance validation
	// setting for this invocation. Nil means "use the client setting".
	SuppressValidation *bool
}

// HasEntity reports whether the request carries a body.
func (r *Request) HasEntity() bool {
	return r.Entity != nil
}

// Clone returns a deep enough copy of the request that concurrent reuse of
// the original by the caller is safe. The entity is shared; entities are
// required to be re-serializable or single-use by their own contract.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	if r.Header != nil {
		clone.Header = r.Header.Clone()
	}
	if r.FollowRedirects != nil {
		v := *r.FollowRedirects
		clone.FollowRedirects = &v
	}
	if r.SuppressValidation != nil {
		v := *r.SuppressValidation
		clone.SuppressValidation = &v
	}
	return &clone
}

func (r *Request) redirects() bool {
	return r.FollowRedirects == nil || *r.FollowRedirects
}
