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
	"sync/atomic"

	"github.com/restbridge/restbridge/wire"
)

// Callback receives the terminal outcome of an asynchronous invocation.
// Exactly one of the two functions is invoked, exactly once. Nil functions
// are allowed and skipped.
type Callback struct {
	OnResponse func(*Response)
	OnFailure  func(error)
}

func (cb Callback) response(resp *Response) {
	if cb.OnResponse != nil {
		cb.OnResponse(resp)
	}
}

func (cb Callback) failure(err error) {
	if cb.OnFailure != nil {
		cb.OnFailure(err)
	}
}

// bridge adapts the push-based transport event protocol onto a pull-based
// Pending and a one-shot application callback. It is a single-writer state
// machine: the transport delivers events from one goroutine at a time, and
// every user-visible transition is guarded by an atomic test-and-set so
// cancellation racing a late event cannot double-report.
type bridge struct {
	pending  *Pending
	callback Callback
	stream   *byteStream
	strategy ClosingStrategy

	// response shell assembled on the headers event
	response atomic.Pointer[Response]
	// exactly one of {application callback, cancellation} may claim this
	callbackFired atomic.Bool
}

func newBridge(pending *Pending, callback Callback, strategy ClosingStrategy) *bridge {
	return &bridge{
		pending:  pending,
		callback: callback,
		stream:   newByteStream(),
		strategy: strategy,
	}
}

// onEvent is the single dispatch function consuming the transport's event
// sequence for one exchange.
func (b *bridge) onEvent(ev wire.Event) {
	switch ev.Kind {
	case wire.EventHeaders:
		if b.pending.State() != StatePending {
			// The future was settled (cancelled) before headers
			// arrived. Claim the callback guard so no late terminal
			// event can reach the application.
			b.callbackFired.CompareAndSwap(false, true)
			return
		}
		b.response.Store(assemble(ev.Status, ev.Reason, ev.Header, b.stream, b.strategy))

	case wire.EventData:
		if err := b.stream.Put(ev.Chunk); err != nil {
			wrapped := normalizeFailure(err)
			b.stream.CloseQueue(wrapped)
			b.pending.Fail(wrapped)
		}

	case wire.EventComplete:
		b.stream.CloseQueue(nil)
		resp := b.response.Load()
		if b.callbackFired.CompareAndSwap(false, true) && resp != nil {
			b.callback.response(resp)
		}
		b.pending.Complete(resp)

	case wire.EventFailure:
		failure := normalizeFailure(ev.Err)
		b.stream.CloseQueue(failure)
		// Same error value on the future and the callback path.
		b.pending.Fail(failure)
		if b.callbackFired.CompareAndSwap(false, true) {
			b.callback.failure(failure)
		}
	}
}

// abort is wired into the Pending as its cancellation hook. It claims the
// callback guard, fails the body stream and stops the transport exchange.
func (b *bridge) abort(exchange wire.Exchange) func(cause error) {
	return func(cause error) {
		b.callbackFired.CompareAndSwap(false, true)
		b.stream.CloseQueue(cause)
		if exchange != nil {
			exchange.Abort(cause)
		}
	}
}
