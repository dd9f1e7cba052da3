// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import "sync"

// deferredQueue holds destruction closures until the application confirms
// the GPU no longer references them. Closures run in submission order.
type deferredQueue struct {
	mu      sync.Mutex
	pending []func()
}

func (q *deferredQueue) push(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

func (q *deferredQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// drain runs every queued closure, including closures queued by the ones
// running, and returns how many ran.
func (q *deferredQueue) drain() int {
	n := 0
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
		}
		n += len(batch)
	}
}
