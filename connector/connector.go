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

// Package connector bridges abstract outbound requests onto a wire
// transport. It owns request translation, entity buffering, response
// assembly and the callback-to-future adaptation for asynchronous sends.
package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/restbridge/restbridge/wire"
)

// Connector issues prepared requests against its transport, synchronously
// or asynchronously. Implementations are safe for concurrent use.
type Connector interface {
	// Apply performs the invocation on the calling goroutine, blocking
	// until a response or error is available. The caller must close the
	// returned response.
	Apply(ctx context.Context, req *Request) (*Response, error)

	// ApplyAsync starts the invocation and returns a cancellable handle
	// immediately. The callback and the handle observe the same terminal
	// outcome, the callback exactly once.
	ApplyAsync(ctx context.Context, req *Request, callback Callback) *Pending

	// Name identifies the connector and its transport.
	Name() string

	// Close releases the transport. In-flight invocations fail.
	Close() error
}

// Option configures a connector.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) { f(opts) }

type options struct {
	strategy  ClosingStrategy
	buffering Buffering
	syncLimit int64
	logger    *slog.Logger
}

// WithClosingStrategy sets the policy run when a response's entity stream
// is closed. The default drains and closes the stream so the transport can
// reuse the connection.
func WithClosingStrategy(strategy ClosingStrategy) Option {
	return optionFunc(func(opts *options) {
		opts.strategy = strategy
	})
}

// WithDefaultBuffering sets the entity strategy used by requests that do
// not override it. The default is Streamed.
func WithDefaultBuffering(mode Buffering) Option {
	return optionFunc(func(opts *options) {
		opts.buffering = mode
	})
}

// WithSyncResponseLimit makes synchronous invocations run through the
// asynchronous event path with the response fully buffered in memory,
// failing any response larger than limit bytes.
func WithSyncResponseLimit(limit int64) Option {
	return optionFunc(func(opts *options) {
		opts.syncLimit = limit
	})
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(opts *options) {
		opts.logger = logger
	})
}

var errResponseTooLarge = errors.New("buffered response exceeds configured limit")

// New returns a connector driving the given transport.
func New(transport wire.Transport, opts ...Option) (Connector, error) {
	var resolved options
	for _, opt := range opts {
		opt.apply(&resolved)
	}
	if resolved.syncLimit < 0 {
		return nil, &ConfigError{Field: "sync response limit", Err: errors.New("must not be negative")}
	}
	if resolved.strategy == nil {
		resolved.strategy = GracefulClosing
	}
	if resolved.logger == nil {
		resolved.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &connector{
		transport: transport,
		strategy:  resolved.strategy,
		buffered:  resolved.buffering == Buffered,
		syncLimit: resolved.syncLimit,
		logger:    resolved.logger,
	}, nil
}

type connector struct {
	transport wire.Transport
	strategy  ClosingStrategy
	buffered  bool
	syncLimit int64
	logger    *slog.Logger

	closed atomic.Bool
}

func (c *connector) Name() string {
	return "restbridge connector via " + c.transport.Name()
}

func (c *connector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.transport.Close()
}

func (c *connector) Apply(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	private := req.Clone()
	wreq, err := c.translate(private)
	if err != nil {
		return nil, err
	}
	snapshot := private.Header.Clone()

	if c.syncLimit > 0 {
		return c.applyBuffered(ctx, req, wreq, snapshot)
	}

	wresp, err := c.transport.Send(ctx, wreq)
	c.checkHeaderChanges(snapshot, req.Header)
	if err != nil {
		return nil, sendFailure(ctx, err)
	}
	backfillEntityHeaders(wresp.Header, wresp.ContentLength)
	return assemble(wresp.Status, wresp.Reason, wresp.Header, wresp.Body, c.strategy), nil
}

// applyBuffered is the blocking listener variant: the exchange runs through
// the asynchronous event path and the entity is captured fully in memory,
// capped at the configured limit.
func (c *connector) applyBuffered(ctx context.Context, req *Request, wreq *wire.Request, snapshot http.Header) (*Response, error) {
	pending := NewPending()
	br := newBridge(pending, Callback{}, func(body io.ReadCloser) error { return body.Close() })
	exchange := c.transport.SendAsync(ctx, wreq, br.onEvent)
	pending.SetAbort(br.abort(exchange))

	resp, err := pending.Wait(ctx)
	c.checkHeaderChanges(snapshot, req.Header)
	if err != nil {
		pending.Cancel()
		return nil, sendFailure(ctx, err)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body(), c.syncLimit+1))
	_ = resp.Close()
	if err != nil {
		return nil, sendFailure(ctx, err)
	}
	if int64(len(content)) > c.syncLimit {
		return nil, &TransportError{Err: fmt.Errorf("%w (%d bytes)", errResponseTooLarge, c.syncLimit)}
	}
	buffered := io.NopCloser(bytes.NewReader(content))
	return assemble(resp.StatusCode, resp.Reason, resp.Header, buffered, ImmediateClosing), nil
}

func (c *connector) ApplyAsync(ctx context.Context, req *Request, callback Callback) *Pending {
	pending := NewPending()
	br := newBridge(pending, callback, c.strategy)
	if c.closed.Load() {
		br.onEvent(wire.Event{Kind: wire.EventFailure, Err: ErrClosed})
		return pending
	}
	private := req.Clone()
	wreq, err := c.translate(private)
	if err != nil {
		// Registration failed before any transport event: report it
		// through the same single failure path.
		br.onEvent(wire.Event{Kind: wire.EventFailure, Err: err})
		return pending
	}
	exchange := c.transport.SendAsync(ctx, wreq, br.onEvent)
	pending.SetAbort(br.abort(exchange))
	return pending
}

// checkHeaderChanges warns when the caller mutated the outbound headers
// concurrently with the send. The connector operated on its private copy,
// so the mutation had no effect, which is usually a bug worth surfacing.
func (c *connector) checkHeaderChanges(snapshot, current http.Header) {
	if len(snapshot) != len(current) {
		c.logger.Warn("outbound headers were modified during the invocation",
			slog.String("connector", c.Name()))
		return
	}
	for name, values := range snapshot {
		live, ok := current[name]
		if !ok || len(live) != len(values) {
			c.logger.Warn("outbound headers were modified during the invocation",
				slog.String("connector", c.Name()), slog.String("header", name))
			return
		}
		for i, value := range values {
			if live[i] != value {
				c.logger.Warn("outbound headers were modified during the invocation",
					slog.String("connector", c.Name()), slog.String("header", name))
				return
			}
		}
	}
}

// sendFailure maps a blocking-send failure onto the error taxonomy,
// preserving user-initiated cancellation as a distinct kind.
func sendFailure(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)) {
		return errors.Join(ErrCancelled, err)
	}
	return normalizeFailure(err)
}
