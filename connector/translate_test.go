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
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConnector(t *testing.T, opts ...Option) *connector {
	t.Helper()
	conn, err := New(&scriptedTransport{}, opts...)
	require.NoError(t, err)
	return conn.(*connector)
}

func testURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("http://example.com/resource")
	require.NoError(t, err)
	return u
}

func TestTranslateValidation(t *testing.T) {
	t.Parallel()

	conn := testConnector(t)
	testCases := []struct {
		name  string
		req   *Request
		field string
	}{
		{
			name:  "missing method",
			req:   &Request{URL: testURL(t)},
			field: "method",
		},
		{
			name:  "missing url",
			req:   &Request{Method: http.MethodGet},
			field: "url",
		},
		{
			name:  "negative connect timeout",
			req:   &Request{Method: http.MethodGet, URL: testURL(t), ConnectTimeout: -time.Second},
			field: "connect timeout",
		},
		{
			name:  "negative read timeout",
			req:   &Request{Method: http.MethodGet, URL: testURL(t), ReadTimeout: -time.Second},
			field: "read timeout",
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			_, err := conn.translate(testCase.req)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, testCase.field, cfgErr.Field)
		})
	}
}

func TestTranslateCopiesHeadersVerbatim(t *testing.T) {
	t.Parallel()

	conn := testConnector(t)
	header := http.Header{}
	header.Add("Accept", "application/json")
	header.Add("X-Trace", "one")
	header.Add("X-Trace", "two")

	req := &Request{Method: http.MethodGet, URL: testURL(t), Header: header}
	wreq, err := conn.translate(req)
	require.NoError(t, err)

	require.Equal(t, []string{"one", "two"}, wreq.Header.Values("X-Trace"))
	require.Equal(t, "application/json", wreq.Header.Get("Accept"))

	// the translated request owns its header copy
	wreq.Header.Set("Accept", "text/plain")
	require.Equal(t, "application/json", header.Get("Accept"))
}

func TestTranslateTimeoutAndRedirectOverrides(t *testing.T) {
	t.Parallel()

	conn := testConnector(t)
	no := false
	req := &Request{
		Method:          http.MethodGet,
		URL:             testURL(t),
		ConnectTimeout:  2 * time.Second,
		ReadTimeout:     5 * time.Second,
		FollowRedirects: &no,
	}
	wreq, err := conn.translate(req)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, wreq.ConnectTimeout)
	require.Equal(t, 5*time.Second, wreq.ReadTimeout)
	require.False(t, wreq.FollowRedirects)

	// zero timeouts mean transport defaults, redirects default to on
	wreq, err = conn.translate(&Request{Method: http.MethodGet, URL: testURL(t)})
	require.NoError(t, err)
	require.Zero(t, wreq.ConnectTimeout)
	require.Zero(t, wreq.ReadTimeout)
	require.True(t, wreq.FollowRedirects)
}

func TestTranslateBufferingOverride(t *testing.T) {
	t.Parallel()

	// a connector defaulting to buffered entities still streams a request
	// that asks for streaming, and vice versa
	buffered := testConnector(t, WithDefaultBuffering(Buffered))
	req := &Request{
		Method:    http.MethodPost,
		URL:       testURL(t),
		Entity:    BytesEntity([]byte("data")),
		Buffering: Streamed,
	}
	wreq, err := buffered.translate(req)
	require.NoError(t, err)
	require.Nil(t, wreq.GetBody, "streamed entity must not be replayable")

	streamed := testConnector(t)
	req.Buffering = Buffered
	wreq, err = streamed.translate(req)
	require.NoError(t, err)
	require.NotNil(t, wreq.GetBody)
	require.EqualValues(t, 4, wreq.ContentLength)
}
