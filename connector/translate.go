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
	"errors"

	"github.com/restbridge/restbridge/wire"
)

var (
	errNoMethod        = errors.New("method must not be empty")
	errNoURL           = errors.New("target URL must not be set to nil")
	errNegativeTimeout = errors.New("timeout must not be negative")
)

// translate converts an abstract request into a transport-native one. The
// request's headers are copied verbatim; the transport's own identification
// header is left to the transport, which must only inject it when the
// caller did not set one. Per-request timeout and redirect properties, when
// present, override the transport defaults for this exchange only.
//
// translate does not execute the exchange.
func (c *connector) translate(req *Request) (*wire.Request, error) {
	if req.Method == "" {
		return nil, &ConfigError{Field: "method", Err: errNoMethod}
	}
	if req.URL == nil {
		return nil, &ConfigError{Field: "url", Err: errNoURL}
	}
	if req.ConnectTimeout < 0 {
		return nil, &ConfigError{Field: "connect timeout", Err: errNegativeTimeout}
	}
	if req.ReadTimeout < 0 {
		return nil, &ConfigError{Field: "read timeout", Err: errNegativeTimeout}
	}

	buffered := c.buffered
	switch req.Buffering {
	case Buffered:
		buffered = true
	case Streamed:
		buffered = false
	}
	body, getBody, length, err := adaptEntity(req.Entity, buffered)
	if err != nil {
		return nil, err
	}

	wreq := &wire.Request{
		Method:          req.Method,
		URL:             req.URL,
		Header:          req.Header.Clone(),
		Body:            body,
		GetBody:         getBody,
		ContentLength:   length,
		FollowRedirects: req.redirects(),
	}
	if req.ConnectTimeout > 0 {
		wreq.ConnectTimeout = req.ConnectTimeout
	}
	if req.ReadTimeout > 0 {
		wreq.ReadTimeout = req.ReadTimeout
	}
	return wreq, nil
}
