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
	"io"
	"net/http"
	"strconv"
)

// assemble builds the uniform response from whatever the transport yielded.
// A missing reason phrase is derived from the status code. Headers are
// accumulated preserving duplicates: a repeated name appends to the value
// list, it never overwrites.
func assemble(status int, reason string, header http.Header, body io.ReadCloser, strategy ClosingStrategy) *Response {
	if reason == "" {
		reason = http.StatusText(status)
	}
	accumulated := make(http.Header, len(header))
	for name, values := range header {
		for _, value := range values {
			accumulated[name] = append(accumulated[name], value)
		}
	}
	if body == nil {
		body = noBody{}
	}
	return &Response{
		StatusCode: status,
		Reason:     reason,
		Header:     accumulated,
		body:       newClosingBody(body, strategy),
	}
}

// backfillEntityHeaders adds Content-Length when the transport reported an
// entity length that never made it into the header map, such as after
// transparent decompression or for h2 responses.
func backfillEntityHeaders(header http.Header, contentLength int64) {
	if contentLength >= 0 && header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	}
}
