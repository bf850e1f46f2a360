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
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/restbridge/restbridge/wire"
)

// scriptedTransport is an in-memory transport whose behavior each test
// scripts via the send and sendAsync hooks.
type scriptedTransport struct {
	send      func(ctx context.Context, req *wire.Request) (*wire.Response, error)
	sendAsync func(ctx context.Context, req *wire.Request, listener wire.Listener) wire.Exchange
	closed    atomic.Bool
}

func (s *scriptedTransport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if s.send == nil {
		return &wire.Response{Status: 200, ContentLength: -1}, nil
	}
	return s.send(ctx, req)
}

func (s *scriptedTransport) SendAsync(ctx context.Context, req *wire.Request, listener wire.Listener) wire.Exchange {
	if s.sendAsync == nil {
		listener(wire.Event{Kind: wire.EventHeaders, Status: 200})
		listener(wire.Event{Kind: wire.EventComplete})
		return &scriptedExchange{}
	}
	return s.sendAsync(ctx, req, listener)
}

func (s *scriptedTransport) Name() string { return "scripted" }

func (s *scriptedTransport) Close() error {
	s.closed.Store(true)
	return nil
}

func TestApply(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{
		send: func(_ context.Context, req *wire.Request) (*wire.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			header := http.Header{}
			header.Add("X-Tag", "a")
			header.Add("X-Tag", "b")
			return &wire.Response{
				Status:        200,
				Header:        header,
				Body:          io.NopCloser(strings.NewReader("hello")),
				ContentLength: 5,
			}, nil
		},
	}
	conn, err := New(transport)
	require.NoError(t, err)

	resp, err := conn.Apply(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)})
	require.NoError(t, err)
	defer resp.Close()

	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "OK", resp.Reason, "missing reason phrase is derived from the code")
	require.Equal(t, []string{"a", "b"}, resp.Header.Values("X-Tag"))
	require.Equal(t, "5", resp.Header.Get("Content-Length"), "entity length is backfilled")

	data, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestApplyTransportFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial refused")
	conn, err := New(&scriptedTransport{
		send: func(context.Context, *wire.Request) (*wire.Response, error) {
			return nil, cause
		},
	})
	require.NoError(t, err)

	_, err = conn.Apply(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	require.ErrorIs(t, err, cause)
}

func TestApplyCancelledContext(t *testing.T) {
	t.Parallel()

	conn, err := New(&scriptedTransport{
		send: func(ctx context.Context, _ *wire.Request) (*wire.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.Apply(ctx, &Request{Method: http.MethodGet, URL: testURL(t)})
	require.ErrorIs(t, err, ErrCancelled)
}

func TestApplyAfterClose(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{}
	conn, err := New(transport)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close is idempotent")
	require.True(t, transport.closed.Load())

	_, err = conn.Apply(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)})
	require.ErrorIs(t, err, ErrClosed)
}

func TestApplyHeaderChangeWarning(t *testing.T) {
	t.Parallel()

	var logged strings.Builder
	logger := slog.New(slog.NewTextHandler(&logged, nil))

	req := &Request{Method: http.MethodGet, URL: testURL(t), Header: http.Header{}}
	req.Header.Set("Accept", "application/json")

	transport := &scriptedTransport{
		send: func(context.Context, *wire.Request) (*wire.Response, error) {
			// mutation while the exchange is in flight
			req.Header.Set("Accept", "text/plain")
			return &wire.Response{Status: 204, ContentLength: -1}, nil
		},
	}
	conn, err := New(transport, WithLogger(logger))
	require.NoError(t, err)

	resp, err := conn.Apply(context.Background(), req)
	require.NoError(t, err)
	defer resp.Close()

	require.Contains(t, logged.String(), "headers were modified")
	require.Contains(t, logged.String(), "Accept")
}

func TestApplySyncResponseLimit(t *testing.T) {
	t.Parallel()

	playback := func(body string) func(context.Context, *wire.Request, wire.Listener) wire.Exchange {
		return func(_ context.Context, _ *wire.Request, listener wire.Listener) wire.Exchange {
			listener(wire.Event{Kind: wire.EventHeaders, Status: 200})
			listener(wire.Event{Kind: wire.EventData, Chunk: []byte(body)})
			listener(wire.Event{Kind: wire.EventComplete})
			return &scriptedExchange{}
		}
	}

	conn, err := New(&scriptedTransport{sendAsync: playback("within limit")}, WithSyncResponseLimit(64))
	require.NoError(t, err)
	resp, err := conn.Apply(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)})
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	require.Equal(t, "within limit", string(data))
	require.NoError(t, resp.Close())

	conn, err = New(&scriptedTransport{sendAsync: playback(strings.Repeat("x", 65))}, WithSyncResponseLimit(64))
	require.NoError(t, err)
	_, err = conn.Apply(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)})
	require.ErrorIs(t, err, errResponseTooLarge)
}

func TestNewRejectsNegativeSyncLimit(t *testing.T) {
	t.Parallel()

	_, err := New(&scriptedTransport{}, WithSyncResponseLimit(-1))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestApplyAsync(t *testing.T) {
	t.Parallel()

	conn, err := New(&scriptedTransport{
		sendAsync: func(_ context.Context, _ *wire.Request, listener wire.Listener) wire.Exchange {
			go func() {
				listener(wire.Event{Kind: wire.EventHeaders, Status: 201})
				listener(wire.Event{Kind: wire.EventData, Chunk: []byte("created")})
				listener(wire.Event{Kind: wire.EventComplete})
			}()
			return &scriptedExchange{}
		},
	})
	require.NoError(t, err)

	done := make(chan *Response, 1)
	pending := conn.ApplyAsync(context.Background(), &Request{
		Method: http.MethodPost,
		URL:    testURL(t),
		Entity: BytesEntity([]byte("in")),
	}, Callback{OnResponse: func(r *Response) { done <- r }})

	resp, err := pending.Wait(context.Background())
	require.NoError(t, err)
	require.Same(t, resp, <-done)
	require.Equal(t, 201, resp.StatusCode)

	data, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	require.Equal(t, "created", string(data))
	require.NoError(t, resp.Close())
}

func TestApplyAsyncRegistrationFailure(t *testing.T) {
	t.Parallel()

	conn, err := New(&scriptedTransport{})
	require.NoError(t, err)

	// an invalid request never reaches the transport but still resolves
	// the handle and fires the failure callback
	failed := make(chan error, 1)
	pending := conn.ApplyAsync(context.Background(), &Request{URL: testURL(t)},
		Callback{OnFailure: func(err error) { failed <- err }})

	_, err = pending.Wait(context.Background())
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Same(t, err, <-failed)
	require.Equal(t, StateFailed, pending.State())
}

func TestApplyAsyncAfterClose(t *testing.T) {
	t.Parallel()

	conn, err := New(&scriptedTransport{})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	pending := conn.ApplyAsync(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)}, Callback{})
	_, err = pending.Wait(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestApplyAsyncCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	exchange := &scriptedExchange{}
	conn, err := New(&scriptedTransport{
		sendAsync: func(_ context.Context, _ *wire.Request, listener wire.Listener) wire.Exchange {
			go func() {
				<-release
				listener(wire.Event{Kind: wire.EventFailure, Err: errors.New("aborted by peer")})
			}()
			return exchange
		},
	})
	require.NoError(t, err)

	var callbacks atomic.Int32
	pending := conn.ApplyAsync(context.Background(), &Request{Method: http.MethodGet, URL: testURL(t)},
		Callback{
			OnResponse: func(*Response) { callbacks.Add(1) },
			OnFailure:  func(error) { callbacks.Add(1) },
		})

	require.True(t, pending.Cancel())
	require.ErrorIs(t, exchange.cause, ErrCancelled)

	// the transport's own failure, delivered late, changes nothing
	close(release)
	_, err = pending.Wait(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, StateCancelled, pending.State())
	require.Zero(t, callbacks.Load())
}

func TestConnectorName(t *testing.T) {
	t.Parallel()

	conn, err := New(&scriptedTransport{})
	require.NoError(t, err)
	require.Equal(t, "restbridge connector via scripted", conn.Name())
}
