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
	"log/slog"

	"github.com/restbridge/restbridge/connector"
)

// ClientOption is an option used to customize the behavior of a Client.
type ClientOption interface {
	apply(*clientOptions)
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) { f(opts) }

type clientOptions struct {
	conn               connector.Connector
	executor           Executor
	providers          []ExecutorProvider
	asyncPoolSize      int
	suppressValidation bool
	logger             *slog.Logger
}

// WithConnector supplies the connector the client invokes through. Without
// this option a connector over the default pooled transport is created.
func WithConnector(conn connector.Connector) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.conn = conn
	})
}

// WithExecutor pins the executor used for asynchronous dispatch. An
// explicit executor always wins over registered providers.
func WithExecutor(executor Executor) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.executor = executor
	})
}

// WithExecutorProvider registers an executor provider. When no explicit
// executor is configured, the provider with the highest priority is used:
// a non-default provider outranks a default one, and the async capability
// flag breaks ties.
func WithExecutorProvider(provider ExecutorProvider) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.providers = append(opts.providers, provider)
	})
}

// WithAsyncPoolSize bounds asynchronous dispatch to a pool of the given
// number of workers, registered as the default async provider. Without it,
// dispatch runs on plain goroutines.
func WithAsyncPoolSize(size int) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.asyncPoolSize = size
	})
}

// WithSuppressValidation disables http compliance validation client-wide:
// method/entity violations are logged instead of raised. Individual
// requests can override this in either direction.
func WithSuppressValidation(suppress bool) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.suppressValidation = suppress
	})
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}
