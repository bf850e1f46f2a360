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
	"bytes"
	"fmt"
	"io"
)

// Entity produces a request body. WriteTo may be called more than once when
// the entity is buffered or replayed; single-use entities should return an
// error on the second call.
type Entity interface {
	// WriteTo serializes the entity into w.
	WriteTo(w io.Writer) error

	// ContentLength returns the serialized length in bytes, or -1 when it
	// is not known up front.
	ContentLength() int64
}

// EntityWriteError reports that serializing a request entity failed. It is
// always distinguishable from transport-level failures.
type EntityWriteError struct {
	Err error
}

func (e *EntityWriteError) Error() string {
	return fmt.Sprintf("failed to write request entity: %v", e.Err)
}

func (e *EntityWriteError) Unwrap() error { return e.Err }

// BytesEntity returns an entity backed by the given byte slice. The slice
// must not be modified while the entity is in use.
func BytesEntity(data []byte) Entity {
	return bytesEntity(data)
}

type bytesEntity []byte

func (b bytesEntity) WriteTo(w io.Writer) error {
	_, err := w.Write(b)
	return err
}

func (b bytesEntity) ContentLength() int64 { return int64(len(b)) }

// ProducerEntity returns an entity whose bytes are produced by fn each time
// the entity is serialized. Use it for streaming payloads whose size is not
// known up front.
func ProducerEntity(fn func(w io.Writer) error) Entity {
	return producerEntity(fn)
}

type producerEntity func(io.Writer) error

func (p producerEntity) WriteTo(w io.Writer) error { return p(w) }

func (p producerEntity) ContentLength() int64 { return -1 }

// adaptEntity implements the two entity strategies. For the buffered
// strategy the entity is serialized immediately; a serialization failure is
// reported before any network activity. For the streamed strategy the
// entity is serialized into a pipe by a separate goroutine while the
// transport drains it; a serialization failure surfaces as an
// *EntityWriteError from the transport's body reads.
func adaptEntity(entity Entity, buffered bool) (body io.ReadCloser, getBody func() (io.ReadCloser, error), length int64, err error) {
	if entity == nil {
		return nil, nil, 0, nil
	}
	if buffered {
		var buf bytes.Buffer
		if err := entity.WriteTo(&buf); err != nil {
			return nil, nil, 0, &EntityWriteError{Err: err}
		}
		data := buf.Bytes()
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
		body, _ = getBody()
		return body, getBody, int64(len(data)), nil
	}

	pr, pw := io.Pipe()
	go func() {
		if err := entity.WriteTo(pw); err != nil {
			pw.CloseWithError(&EntityWriteError{Err: err})
			return
		}
		pw.Close()
	}()
	return pr, nil, entity.ContentLength(), nil
}
