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
	"sync"
)

// byteStream is the queue between a transport goroutine producing response
// body chunks and the user goroutine reading the entity. Single producer,
// single consumer. Puts never block: buffering is unbounded, so a consumer
// that never reads cannot stall the transport. The producer side stays
// interruptible because Put fails fast once the queue or the reader side
// has been closed.
type byteStream struct {
	mu     sync.Mutex
	chunks [][]byte
	// terminal error observed by the reader after the queue drains;
	// io.EOF for a clean close
	err          error
	closed       bool
	readerClosed bool
	notify       chan struct{}
}

func newByteStream() *byteStream {
	return &byteStream{notify: make(chan struct{}, 1)}
}

// Put appends a copy of p to the queue. It returns the terminal error if
// the queue was already closed, in which case the chunk is dropped.
func (s *byteStream) Put(p []byte) error {
	s.mu.Lock()
	if s.closed || s.readerClosed {
		err := s.err
		s.mu.Unlock()
		if err == nil || err == io.EOF {
			err = io.ErrClosedPipe
		}
		return err
	}
	if len(p) > 0 {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		s.chunks = append(s.chunks, chunk)
	}
	s.mu.Unlock()
	s.wake()
	return nil
}

// CloseQueue marks the end of the chunk sequence. A nil err means a clean
// end of data; a reader drains any queued chunks and then observes io.EOF.
// A non-nil err is observed by the reader instead, so an interrupted body
// is seen as a failure rather than silent truncation. Only the first close
// wins.
func (s *byteStream) CloseQueue(err error) {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if err == nil {
			err = io.EOF
		}
		s.err = err
	}
	s.mu.Unlock()
	s.wake()
}

func (s *byteStream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Read implements io.Reader for the consumer side. It blocks until data is
// available or the queue is closed.
func (s *byteStream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.readerClosed {
			s.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if len(s.chunks) > 0 {
			head := s.chunks[0]
			n := copy(p, head)
			if n < len(head) {
				s.chunks[0] = head[n:]
			} else {
				s.chunks = s.chunks[1:]
			}
			s.mu.Unlock()
			return n, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		s.mu.Unlock()
		<-s.notify
	}
}

// Close releases the consumer side. Queued chunks are dropped and further
// Puts fail. Idempotent.
func (s *byteStream) Close() error {
	s.mu.Lock()
	s.readerClosed = true
	s.chunks = nil
	s.mu.Unlock()
	s.wake()
	return nil
}
