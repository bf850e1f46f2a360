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

// Package pool provides the default wire.Transport: a pooled HTTP/1.1 and
// HTTP/2 transport built on net/http, with optional h2c, proxying, cookie
// handling and preemptive basic authentication.
package pool

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/restbridge/restbridge/internal"
	"github.com/restbridge/restbridge/wire"
)

var errReadTimeout = errors.New("timed out reading response")

const defaultAgent = "restbridge/1.0"

var defaultDialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// Option configures a Pool.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(opts *options) { f(opts) }

type options struct {
	dialFunc        func(ctx context.Context, network, addr string) (net.Conn, error)
	proxyURL        *url.URL
	proxyUser       string
	proxyPassword   string
	tlsConfig       *tls.Config
	disableCookies  bool
	preemptiveAuth  bool
	authUser        string
	authPassword    string
	maxPerHost      int
	maxTotal        int
	idleConnTimeout time.Duration
	connectTimeout  time.Duration
	readTimeout     time.Duration
	agent           string
	h2c             bool
}

// WithDialer replaces the function used to establish network connections.
func WithDialer(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return optionFunc(func(opts *options) { opts.dialFunc = dialFunc })
}

// WithProxy routes all exchanges through the given HTTP proxy. Credentials,
// when non-empty, are sent as proxy authorization.
func WithProxy(proxyURL *url.URL, username, password string) Option {
	return optionFunc(func(opts *options) {
		opts.proxyURL = proxyURL
		opts.proxyUser = username
		opts.proxyPassword = password
	})
}

// WithTLSConfig supplies custom TLS configuration for https targets.
func WithTLSConfig(config *tls.Config) Option {
	return optionFunc(func(opts *options) { opts.tlsConfig = config })
}

// WithoutCookies disables the shared cookie store.
func WithoutCookies() Option {
	return optionFunc(func(opts *options) { opts.disableCookies = true })
}

// WithBasicAuth supplies credentials for the target host. When preemptive
// is true the Authorization header is attached to every request up front
// instead of waiting for a challenge; streamed request entities cannot be
// replayed, so preemptive authentication is the only kind that works for
// them.
func WithBasicAuth(username, password string, preemptive bool) Option {
	return optionFunc(func(opts *options) {
		opts.authUser = username
		opts.authPassword = password
		opts.preemptiveAuth = preemptive
	})
}

// WithConnectionLimits caps concurrent connections per host and in total.
// Zero means no cap.
func WithConnectionLimits(perHost, total int) Option {
	return optionFunc(func(opts *options) {
		opts.maxPerHost = perHost
		opts.maxTotal = total
	})
}

// WithIdleConnTimeout expires idle pooled connections.
func WithIdleConnTimeout(timeout time.Duration) Option {
	return optionFunc(func(opts *options) { opts.idleConnTimeout = timeout })
}

// WithDefaultTimeouts sets the connect and read timeouts used by exchanges
// that do not carry their own overrides.
func WithDefaultTimeouts(connect, read time.Duration) Option {
	return optionFunc(func(opts *options) {
		opts.connectTimeout = connect
		opts.readTimeout = read
	})
}

// WithAgent sets the identification header value injected when the caller
// did not set one.
func WithAgent(agent string) Option {
	return optionFunc(func(opts *options) { opts.agent = agent })
}

// WithH2C enables HTTP/2 over plaintext for http targets.
func WithH2C() Option {
	return optionFunc(func(opts *options) { opts.h2c = true })
}

// Pool is a pooled wire.Transport over net/http. It is safe for concurrent
// use; overlapping exchanges share the connection pool and cookie store.
type Pool struct {
	h1      *http.Transport
	h2      *http2.Transport
	jar     http.CookieJar
	opts    options
	authHdr string
	clock   internal.Clock
}

var _ wire.Transport = (*Pool)(nil)

type connectTimeoutKey struct{}

// New builds a Pool from the given options.
func New(opts ...Option) (*Pool, error) {
	var resolved options
	for _, opt := range opts {
		opt.apply(&resolved)
	}
	if resolved.dialFunc == nil {
		resolved.dialFunc = defaultDialer.DialContext
	}
	if resolved.agent == "" {
		resolved.agent = defaultAgent
	}

	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if d, ok := ctx.Value(connectTimeoutKey{}).(time.Duration); ok && d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		} else if resolved.connectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, resolved.connectTimeout)
			defer cancel()
		}
		return resolved.dialFunc(ctx, network, addr)
	}

	pool := &Pool{opts: resolved, clock: internal.NewRealClock()}

	pool.h1 = &http.Transport{
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       resolved.tlsConfig,
		MaxConnsPerHost:       resolved.maxPerHost,
		MaxIdleConns:          resolved.maxTotal,
		IdleConnTimeout:       resolved.idleConnTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if resolved.proxyURL != nil {
		pool.h1.Proxy = http.ProxyURL(resolved.proxyURL)
		if resolved.proxyUser != "" {
			pool.h1.ProxyConnectHeader = http.Header{
				"Proxy-Authorization": {basicCredentials(resolved.proxyUser, resolved.proxyPassword)},
			}
		}
	}
	if resolved.h2c {
		pool.h2 = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			},
		}
	}
	if !resolved.disableCookies {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		pool.jar = jar
	}
	if resolved.preemptiveAuth && resolved.authUser != "" {
		pool.authHdr = basicCredentials(resolved.authUser, resolved.authPassword)
	}
	return pool, nil
}

func basicCredentials(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// Name implements wire.Transport.
func (p *Pool) Name() string {
	if p.h2 != nil {
		return "pooled net/http (h2c)"
	}
	return "pooled net/http"
}

// Send implements the blocking half of wire.Transport.
func (p *Pool) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	httpReq, cancel, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Transport: p.roundTripper(req), Jar: p.jar}
	if !req.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	// The read-timeout context must stay alive until the body has been
	// consumed; tie its cancellation to the body's close.
	httpResp.Body = &cancelOnClose{ReadCloser: httpResp.Body, cancel: cancel}
	return &wire.Response{
		Status:        httpResp.StatusCode,
		Reason:        reasonPhrase(httpResp),
		Header:        httpResp.Header,
		Body:          httpResp.Body,
		ContentLength: httpResp.ContentLength,
	}, nil
}

// SendAsync implements the event-driven half of wire.Transport. The event
// sequence is produced by a single goroutine, so ordering is guaranteed.
func (p *Pool) SendAsync(ctx context.Context, req *wire.Request, listener wire.Listener) wire.Exchange {
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		resp, err := p.Send(ctx, req)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
				err = cause
			}
			listener(wire.Event{Kind: wire.EventFailure, Err: err})
			return
		}
		listener(wire.Event{
			Kind:   wire.EventHeaders,
			Status: resp.Status,
			Reason: resp.Reason,
			Header: resp.Header,
		})
		buf := make([]byte, 8192)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				listener(wire.Event{Kind: wire.EventData, Chunk: buf[:n]})
			}
			if err == io.EOF {
				_ = resp.Body.Close()
				listener(wire.Event{Kind: wire.EventComplete})
				return
			}
			if err != nil {
				_ = resp.Body.Close()
				if cause := context.Cause(ctx); cause != nil {
					err = cause
				}
				listener(wire.Event{Kind: wire.EventFailure, Err: err})
				return
			}
		}
	}()
	return &exchange{cancel: cancel}
}

type exchange struct {
	cancel context.CancelCauseFunc
}

func (e *exchange) Abort(cause error) {
	e.cancel(cause)
}

// Close implements wire.Transport, releasing pooled connections.
func (p *Pool) Close() error {
	grp, _ := errgroup.WithContext(context.Background())
	grp.Go(func() error {
		p.h1.CloseIdleConnections()
		return nil
	})
	if p.h2 != nil {
		grp.Go(func() error {
			p.h2.CloseIdleConnections()
			return nil
		})
	}
	return grp.Wait()
}

func (p *Pool) roundTripper(req *wire.Request) http.RoundTripper {
	if p.h2 != nil && req.URL.Scheme == "http" {
		return p.h2
	}
	return p.h1
}

func (p *Pool) prepare(parent context.Context, req *wire.Request) (*http.Request, context.CancelFunc, error) {
	ctx := parent
	cancel := context.CancelFunc(func() {})
	if req.ConnectTimeout > 0 {
		ctx = context.WithValue(ctx, connectTimeoutKey{}, req.ConnectTimeout)
	}
	readTimeout := p.opts.readTimeout
	if req.ReadTimeout > 0 {
		readTimeout = req.ReadTimeout
	}
	if readTimeout > 0 {
		// The timeout runs on the pool's clock rather than through
		// context.WithTimeout so it covers the whole exchange, body
		// included, and stays controllable in tests.
		var cancelCause context.CancelCauseFunc
		ctx, cancelCause = context.WithCancelCause(ctx)
		timer := p.clock.AfterFunc(readTimeout, func() {
			cancelCause(errReadTimeout)
		})
		cancel = func() {
			timer.Stop()
			cancelCause(nil)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	// The identification header is only injected when the caller did not
	// set one; the caller's own value always takes precedence.
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", p.opts.agent)
	}
	if p.authHdr != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", p.authHdr)
	}
	if req.Body != nil {
		httpReq.ContentLength = req.ContentLength
		httpReq.GetBody = req.GetBody
	}
	return httpReq, cancel, nil
}

func reasonPhrase(resp *http.Response) string {
	// http.Response.Status is "200 OK"; everything after the code is the
	// reason phrase as sent by the server.
	_, reason, ok := strings.Cut(resp.Status, " ")
	if !ok {
		return ""
	}
	return reason
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
