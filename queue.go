// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// QueueType names the logical queue a command list is recorded for.
type QueueType uint8

// Logical queues.
const (
	QueueGraphics QueueType = iota
	QueueCompute
	QueuePresent
)

func (q QueueType) String() string {
	switch q {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueuePresent:
		return "present"
	}
	return fmt.Sprintf("QueueType(%d)", uint8(q))
}

// submitQueue serializes access to the device's native queue and
// remembers the index of the latest submission. Every logical queue
// submits through it, so submission order is execution order.
type submitQueue struct {
	mu     sync.Mutex
	native hal.Queue
	last   uint64
}

func newSubmitQueue(native hal.Queue) *submitQueue {
	return &submitQueue{native: native}
}

// submit executes bufs and returns the submission index.
func (q *submitQueue) submit(bufs []hal.CommandBuffer) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx, err := q.native.Submit(bufs)
	if err != nil {
		return 0, err
	}
	if idx > q.last {
		q.last = idx
	}
	return idx, nil
}

// lastSubmission returns the index of the most recent submission.
func (q *submitQueue) lastSubmission() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// completed returns the highest submission index the GPU has finished.
func (q *submitQueue) completed() uint64 {
	return q.native.PollCompleted()
}

func (q *submitQueue) present(surface hal.Surface, tex hal.SurfaceTexture) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.native.Present(surface, tex, nil)
}

func (q *submitQueue) writeBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.native.WriteBuffer(buf, offset, data)
}
