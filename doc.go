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

// Package restbridge is an HTTP client invocation layer. A caller issues a
// request either synchronously, blocking until a response or error is
// available, or asynchronously, receiving a cancellable pending handle
// that is completed later from the transport's event stream.
//
// The layer is split in two. This package is the dispatcher: it validates
// method/entity compatibility, runs each invocation under a request scope,
// selects an executor for asynchronous dispatch, and maps unsuccessful
// HTTP statuses onto a typed error hierarchy. The connector package does
// the transport-facing work: translating abstract requests into wire
// calls, adapting entity bodies (buffered or streamed), assembling uniform
// responses, and bridging the transport's callback protocol onto a
// single-resolution future.
//
// Transports are pluggable behind the wire.Transport contract; package
// wire/pool provides the default pooled implementation over net/http.
//
// A minimal synchronous call:
//
//	client, err := restbridge.NewClient()
//	if err != nil {
//		// ...
//	}
//	defer client.Close()
//
//	target, _ := url.Parse("http://localhost:8080/resource")
//	resp, err := client.Invoke(ctx, &connector.Request{Method: "GET", URL: target})
//	if err != nil {
//		// *restbridge.StatusError for non-2xx statuses
//	}
//	defer resp.Close()
//
// The same request submitted asynchronously:
//
//	pending := client.Submit(ctx, req, connector.Callback{
//		OnResponse: func(resp *connector.Response) { /* ... */ },
//		OnFailure:  func(err error) { /* ... */ },
//	})
//	// pending.Cancel() aborts the exchange; pending.Wait(ctx) blocks.
package restbridge
