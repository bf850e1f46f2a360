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
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/restbridge/restbridge/connector"
	"github.com/restbridge/restbridge/wire/pool"
)

// entityPresence encodes what the method/entity compliance table allows.
type entityPresence int

const (
	entityOptional entityPresence = iota
	entityForbidden
	entityRequired
)

// methodEntity is the fixed compliance table. Methods not listed accept an
// optional entity.
var methodEntity = map[string]entityPresence{
	"GET":     entityForbidden,
	"HEAD":    entityForbidden,
	"DELETE":  entityForbidden,
	"TRACE":   entityForbidden,
	"PUT":     entityRequired,
	"PATCH":   entityRequired,
	"POST":    entityOptional,
	"OPTIONS": entityOptional,
}

// Client is the public invocation surface. It validates requests, runs
// them under a request scope through its connector, and normalizes HTTP
// error statuses into typed errors. Safe for concurrent use.
type Client struct {
	conn     connector.Connector
	exec     Executor
	ownExec  *PoolExecutor
	suppress bool
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewClient builds a client from the given options. When no connector is
// configured, a connector over the default pooled transport is created and
// owned by the client.
func NewClient(options ...ClientOption) (*Client, error) {
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn := opts.conn
	if conn == nil {
		transport, err := pool.New()
		if err != nil {
			return nil, err
		}
		conn, err = connector.New(transport, connector.WithLogger(opts.logger))
		if err != nil {
			return nil, err
		}
	}

	client := &Client{
		conn:     conn,
		suppress: opts.suppressValidation,
		logger:   opts.logger,
	}
	providers := opts.providers
	if opts.asyncPoolSize > 0 {
		client.ownExec = NewPoolExecutor(opts.asyncPoolSize)
		providers = append(providers, ExecutorProvider{
			Name:     "bounded async pool",
			Default:  true,
			Async:    true,
			Executor: client.ownExec,
		})
	}
	client.exec = selectExecutor(opts.executor, providers)
	return client, nil
}

// Close releases the connector and any client-owned executor. In-flight
// invocations fail.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	if c.ownExec != nil {
		c.ownExec.Close()
	}
	return err
}

// Invoke performs the invocation synchronously, blocking the calling
// goroutine. A response with a status of 300 or above is converted into a
// *StatusError carrying the (buffered) response; the caller must close the
// response returned on success.
func (c *Client) Invoke(ctx context.Context, req *connector.Request) (*connector.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	if err := c.validate(req); err != nil {
		return nil, err
	}

	ctx, scope := beginScope(ctx)
	defer scope.exit()
	c.logger.Debug("invoking request",
		slog.String("invocation", scope.ID()),
		slog.String("method", req.Method),
		slog.Any("url", req.URL))
	scope.OnExit(func() {
		c.logger.Debug("invocation finished", slog.String("invocation", scope.ID()))
	})

	resp, err := c.conn.Apply(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, statusErrorFor(resp)
	}
	return resp, nil
}

// Submit starts the invocation asynchronously and returns a cancellable
// handle immediately. The callback and the handle observe the same
// terminal outcome: a successful response, or an error value that is
// identical on both paths. A status of 300 or above is delivered as a
// *StatusError through the failure path.
func (c *Client) Submit(ctx context.Context, req *connector.Request, callback connector.Callback) *connector.Pending {
	outer := connector.NewPending()
	if c.closed.Load() {
		c.deliverFailure(outer, callback, ErrClientClosed)
		return outer
	}
	if err := c.validate(req); err != nil {
		c.deliverFailure(outer, callback, err)
		return outer
	}

	ctx, scope := beginScope(ctx)
	c.logger.Debug("submitting request",
		slog.String("invocation", scope.ID()),
		slog.String("method", req.Method),
		slog.Any("url", req.URL))
	scope.OnExit(func() {
		c.logger.Debug("invocation finished", slog.String("invocation", scope.ID()))
	})

	var inner atomic.Pointer[connector.Pending]
	var cancelled atomic.Bool
	outer.SetAbort(func(error) {
		cancelled.Store(true)
		if p := inner.Load(); p != nil {
			p.Cancel()
		}
		scope.exit()
	})

	c.exec.Execute(func() {
		p := c.conn.ApplyAsync(ctx, req, connector.Callback{
			OnResponse: func(resp *connector.Response) {
				defer scope.exit()
				if resp.StatusCode >= 300 {
					failure := statusErrorFor(resp)
					if outer.Fail(failure) && callback.OnFailure != nil {
						callback.OnFailure(failure)
					}
					return
				}
				if outer.Complete(resp) {
					if callback.OnResponse != nil {
						callback.OnResponse(resp)
					}
				} else {
					// cancellation won the race; release resources
					_ = resp.Close()
				}
			},
			OnFailure: func(failure error) {
				defer scope.exit()
				if outer.Fail(failure) && callback.OnFailure != nil {
					callback.OnFailure(failure)
				}
			},
		})
		inner.Store(p)
		if cancelled.Load() {
			p.Cancel()
		}
	})
	return outer
}

// deliverFailure settles a pending and notifies the callback for failures
// raised before any network activity, through the same single failure path
// used for transport failures.
func (c *Client) deliverFailure(pending *connector.Pending, callback connector.Callback, err error) {
	if pending.Fail(err) && callback.OnFailure != nil {
		callback.OnFailure(err)
	}
}

// validate enforces the method/entity compliance table. A violation raises
// an *InvocationStateError unless validation is suppressed, in which case
// it is logged and the invocation proceeds.
func (c *Client) validate(req *connector.Request) error {
	presence, ok := methodEntity[strings.ToUpper(req.Method)]
	if !ok {
		return nil
	}
	var reason string
	switch {
	case presence == entityForbidden && req.HasEntity():
		reason = "entity must not be present"
	case presence == entityRequired && !req.HasEntity():
		reason = "entity is required"
	default:
		return nil
	}

	suppress := c.suppress
	if req.SuppressValidation != nil {
		suppress = *req.SuppressValidation
	}
	if suppress {
		c.logger.Warn("suppressed http compliance violation",
			slog.String("method", req.Method),
			slog.String("violation", reason))
		return nil
	}
	return &InvocationStateError{Method: req.Method, Reason: reason}
}

// Decoder reads a response entity into a value of type T.
type Decoder[T any] func(io.Reader) (T, error)

// InvokeAs performs a synchronous invocation and decodes the entity of a
// successful response into T. Statuses of 300 and above raise the typed
// status error without attempting the decode; a decode failure on a
// successful response is reported as a *ResponseError carrying the
// already-assembled response.
func InvokeAs[T any](ctx context.Context, c *Client, req *connector.Request, decode Decoder[T]) (T, error) {
	var zero T
	resp, err := c.Invoke(ctx, req)
	if err != nil {
		return zero, err
	}
	value, err := decode(resp.Body())
	if closeErr := resp.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return zero, &ResponseError{Response: resp, Err: err}
	}
	return value, nil
}
