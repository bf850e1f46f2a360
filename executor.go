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

import "sync"

// Executor schedules asynchronous invocation work.
type Executor interface {
	Execute(fn func())
}

// GoExecutor runs each task on its own goroutine.
type GoExecutor struct{}

func (GoExecutor) Execute(fn func()) { go fn() }

// PoolExecutor runs tasks on a fixed number of worker goroutines. Tasks
// submitted while all workers are busy queue up without blocking Execute.
type PoolExecutor struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped sync.WaitGroup
}

// NewPoolExecutor starts size workers. Size must be at least 1.
func NewPoolExecutor(size int) *PoolExecutor {
	if size < 1 {
		size = 1
	}
	p := &PoolExecutor{wake: make(chan struct{}, size)}
	p.stopped.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Execute schedules fn. Tasks submitted after Close are dropped.
func (p *PoolExecutor) Execute(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, fn)
	// the wake send stays under the lock so it cannot race a Close
	// closing the channel
	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.mu.Unlock()
}

// Close stops the workers once the queue drains and waits for them.
func (p *PoolExecutor) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.wake)
	p.stopped.Wait()
}

func (p *PoolExecutor) worker() {
	defer p.stopped.Done()
	for {
		p.mu.Lock()
		var fn func()
		if len(p.queue) > 0 {
			fn = p.queue[0]
			p.queue = p.queue[1:]
		}
		closed := p.closed
		p.mu.Unlock()
		if fn != nil {
			fn()
			continue
		}
		if closed {
			return
		}
		if _, ok := <-p.wake; !ok {
			// closed; drain whatever queued before the close
			continue
		}
	}
}

// ExecutorProvider describes a registered executor with the capability
// flags that drive selection.
type ExecutorProvider struct {
	Name     string
	Default  bool
	Async    bool
	Executor Executor
}

// score ranks providers: a non-default provider outranks a default one,
// and the async flag breaks ties above that distinction.
func (p ExecutorProvider) score() int {
	score := 0
	if !p.Default {
		score += 10
	}
	if p.Async {
		score++
	}
	return score
}

// selectExecutor picks the executor for asynchronous dispatch. An explicit
// per-client executor always wins. Otherwise the registered provider with
// the highest score is chosen; equal scores resolve to the earliest
// registration, so selection is deterministic.
func selectExecutor(explicit Executor, providers []ExecutorProvider) Executor {
	if explicit != nil {
		return explicit
	}
	var best *ExecutorProvider
	for i := range providers {
		if providers[i].Executor == nil {
			continue
		}
		if best == nil || providers[i].score() > best.score() {
			best = &providers[i]
		}
	}
	if best == nil {
		return GoExecutor{}
	}
	return best.Executor
}
