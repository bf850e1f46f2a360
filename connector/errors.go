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
	"fmt"
)

// ErrCancelled reports that an invocation was cancelled by the caller, as
// opposed to failing in the transport. Errors returned for cancelled
// invocations match it via errors.Is.
var ErrCancelled = errors.New("invocation cancelled")

// ErrClosed is returned for invocations attempted after the connector has
// been closed.
var ErrClosed = errors.New("connector is closed")

// ConfigError reports a malformed configuration value or request property.
// It is raised eagerly, before any network activity.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransportError wraps a network or protocol level failure raised by the
// underlying transport, uniformly across transport implementations.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// normalizeFailure maps a raw failure onto the connector error taxonomy.
// Entity serialization failures and cancellations keep their identity; any
// other failure is wrapped as a TransportError exactly once.
func normalizeFailure(err error) error {
	if err == nil {
		return nil
	}
	var entityErr *EntityWriteError
	if errors.As(err, &entityErr) {
		return entityErr
	}
	if errors.Is(err, ErrCancelled) {
		return err
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	return &TransportError{Err: err}
}
