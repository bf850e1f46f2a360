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
	"context"
	"sync"
)

// State is the lifecycle state of a Pending invocation.
type State int32

const (
	StatePending State = iota
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Pending is a cancellable, single-resolution handle on an in-flight
// asynchronous invocation. Exactly one transition out of StatePending ever
// takes effect; the transport may race a cancellation against an in-flight
// completion and the first transition wins, later attempts are no-ops.
type Pending struct {
	mu    sync.Mutex
	state State
	resp  *Response
	err   error
	abort func(cause error)
	done  chan struct{}
}

// NewPending returns a Pending in StatePending.
func NewPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// SetAbort installs the hook used by Cancel to abort the underlying
// transport exchange. Installing it after cancellation invokes it
// immediately, so a cancel that raced registration still reaches the
// transport.
func (p *Pending) SetAbort(abort func(cause error)) {
	p.mu.Lock()
	cancelled := p.state == StateCancelled
	if !cancelled {
		p.abort = abort
	}
	p.mu.Unlock()
	if cancelled && abort != nil {
		abort(ErrCancelled)
	}
}

// Complete resolves the invocation with a response. Reports whether this
// call performed the transition.
func (p *Pending) Complete(resp *Response) bool {
	return p.settle(StateCompleted, resp, nil)
}

// Fail resolves the invocation with an error. Reports whether this call
// performed the transition.
func (p *Pending) Fail(err error) bool {
	return p.settle(StateFailed, nil, err)
}

// Cancel moves the invocation to StateCancelled and makes a best-effort
// attempt to abort the transport exchange. It is safe to call concurrently
// with natural completion; if a terminal state was already reached, Cancel
// is a no-op and reports false.
func (p *Pending) Cancel() bool {
	if !p.settle(StateCancelled, nil, ErrCancelled) {
		return false
	}
	p.mu.Lock()
	abort := p.abort
	p.mu.Unlock()
	if abort != nil {
		abort(ErrCancelled)
	}
	return true
}

func (p *Pending) settle(state State, resp *Response, err error) bool {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.resp = resp
	p.err = err
	p.mu.Unlock()
	close(p.done)
	return true
}

// State returns the current lifecycle state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the invocation reaches a terminal state.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the terminal response or error. It must only be called
// after Done is closed; before that it reports ok == false.
func (p *Pending) Result() (resp *Response, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StatePending {
		return nil, nil, false
	}
	return p.resp, p.err, true
}

// Wait blocks until the invocation settles or ctx is done. A context
// expiry does not cancel the invocation; call Cancel for that.
func (p *Pending) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	resp, err, _ := p.Result()
	return resp, err
}
