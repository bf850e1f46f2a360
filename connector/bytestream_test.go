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
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestByteStreamOrderedChunks(t *testing.T) {
	t.Parallel()

	stream := newByteStream()
	require.NoError(t, stream.Put([]byte("one ")))
	require.NoError(t, stream.Put([]byte("two ")))
	require.NoError(t, stream.Put([]byte("three")))
	stream.CloseQueue(nil)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "one two three", string(data))
}

func TestByteStreamBlocksUntilData(t *testing.T) {
	t.Parallel()

	stream := newByteStream()
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = stream.Put([]byte("late"))
		stream.CloseQueue(nil)
	}()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, "late", string(data))
}

func TestByteStreamCloseWithFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	stream := newByteStream()
	require.NoError(t, stream.Put([]byte("partial")))
	stream.CloseQueue(cause)

	// queued data drains first, then the failure is observed instead of
	// silent truncation
	buf := make([]byte, 16)
	n, err := stream.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "partial", string(buf[:n]))

	_, err = stream.Read(buf)
	require.ErrorIs(t, err, cause)
}

func TestByteStreamPutAfterCloseFails(t *testing.T) {
	t.Parallel()

	cause := errors.New("aborted")
	stream := newByteStream()
	stream.CloseQueue(cause)
	require.ErrorIs(t, stream.Put([]byte("dropped")), cause)
}

func TestByteStreamReaderClose(t *testing.T) {
	t.Parallel()

	stream := newByteStream()
	require.NoError(t, stream.Put([]byte("pending")))
	require.NoError(t, stream.Close())

	err := stream.Put([]byte("more"))
	require.Error(t, err)

	_, err = stream.Read(make([]byte, 4))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestByteStreamCleanCloseIsEOF(t *testing.T) {
	t.Parallel()

	stream := newByteStream()
	stream.CloseQueue(nil)
	_, err := stream.Read(make([]byte, 4))
	require.ErrorIs(t, err, io.EOF)
}
