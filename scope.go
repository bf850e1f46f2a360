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

package restbridge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type scopeKey struct{}

// Scope carries request-local state for the duration of one invocation. It
// is visible to nested processing through the context and is torn down
// exactly once when the invocation finishes, success or failure.
type Scope struct {
	id string

	mu       sync.Mutex
	values   map[string]any
	cleanups []func()
	exited   bool
}

// beginScope derives a context carrying a fresh scope.
func beginScope(ctx context.Context) (context.Context, *Scope) {
	scope := &Scope{id: uuid.NewString()}
	return context.WithValue(ctx, scopeKey{}, scope), scope
}

// ScopeFrom returns the invocation scope stored in ctx, if any.
func ScopeFrom(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok
}

// ID returns the invocation identifier.
func (s *Scope) ID() string { return s.id }

// Set stores a request-local value.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]any)
	}
	s.values[key] = value
}

// Get returns a request-local value.
func (s *Scope) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

// OnExit registers fn to run when the scope is torn down. If the scope has
// already exited, fn runs immediately.
func (s *Scope) OnExit(fn func()) {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// exit tears the scope down, running cleanups in reverse registration
// order. Only the first call has any effect.
func (s *Scope) exit() {
	s.mu.Lock()
	if s.exited {
		s.mu.Unlock()
		return
	}
	s.exited = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.values = nil
	s.mu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}
