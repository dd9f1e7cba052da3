// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"
	"sync"
	"time"
)

// DefaultWaitTimeout bounds every CPU-side fence wait.
const DefaultWaitTimeout = 5 * time.Second

const (
	minWaitBackoff = 50 * time.Microsecond
	maxWaitBackoff = 2 * time.Millisecond
)

// fenceMark binds a fence value to the native submission that must
// complete before the value counts as reached.
type fenceMark struct {
	value      uint64
	submission uint64
}

// Fence is a monotonically increasing 64-bit timeline. Signal hands out
// the next value and binds it to the latest native submission; the value
// is reached once the GPU has finished that submission. Values are never
// reused or reset.
//
// Fence is safe for concurrent use.
type Fence struct {
	mu      sync.Mutex
	queue   *submitQueue
	label   string
	timeout time.Duration

	signalled uint64
	marks     []fenceMark
}

func newFence(q *submitQueue, label string, timeout time.Duration) *Fence {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return &Fence{queue: q, label: label, timeout: timeout}
}

// Signal allocates the next value. It is reached when every submission
// issued so far has completed.
func (f *Fence) Signal() uint64 {
	sub := f.queue.lastSubmission()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retireLocked()
	f.signalled++
	if sub > f.queue.completed() {
		f.marks = append(f.marks, fenceMark{value: f.signalled, submission: sub})
	}
	return f.signalled
}

// Signalled returns the last value handed out by Signal.
func (f *Fence) Signalled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signalled
}

// Completed returns the highest value the GPU has reached.
func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retireLocked()
}

// retireLocked drops marks whose submission finished and returns the
// completed value.
func (f *Fence) retireLocked() uint64 {
	if len(f.marks) > 0 {
		done := f.queue.completed()
		n := 0
		for n < len(f.marks) && f.marks[n].submission <= done {
			n++
		}
		f.marks = f.marks[n:]
	}
	if len(f.marks) == 0 {
		return f.signalled
	}
	return f.marks[0].value - 1
}

// Reached reports whether value has been reached.
func (f *Fence) Reached(value uint64) bool {
	return f.Completed() >= value
}

// Wait blocks until value is reached or the wait timeout elapses, in which
// case it returns an error wrapping ErrTimeout. Waiting on a value that
// was never signalled is a contract violation.
func (f *Fence) Wait(value uint64) error {
	if f.Reached(value) {
		return nil
	}
	assertf(value <= f.Signalled(), "fence %q: CPU wait on unsignalled value %d", f.label, value)

	start := time.Now()
	backoff := minWaitBackoff
	for !f.Reached(value) {
		if time.Since(start) >= f.timeout {
			return fmt.Errorf("fence %q value %d (completed %d): %w", f.label, value, f.Completed(), ErrTimeout)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxWaitBackoff)
	}
	Logger().Debug("rhi: fence wait", "fence", f.label, "value", value, "elapsed", time.Since(start))
	return nil
}

// gpuWait orders subsequent submissions after value. All logical queues
// share one in-order native queue, so any signalled value is already
// ordered before later submissions.
func (f *Fence) gpuWait(value uint64) {
	assertf(value <= f.Signalled(), "fence %q: GPU wait on unsignalled value %d", f.label, value)
}
