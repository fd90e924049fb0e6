// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ariana-dot-dev/ariana/lib/clock"
)

// sampleFrame is the unit of admission: all samples of one frame are
// queued or dropped together.
type sampleFrame[S any] struct {
	important bool
	samples   []S
}

// SampleQueue buffers frames for one outbound track and delivers them
// from a single goroutine (Run).
//
// Important frames are always admitted and are delivered before any
// regular frame, in the order they were enqueued. Regular frames are
// delivered oldest first and are rejected once the queue holds
// capacity frames. Producers never block.
type SampleQueue[S any] struct {
	media    string
	capacity int
	metrics  *Metrics

	mu        sync.Mutex
	important []sampleFrame[S]
	regular   []sampleFrame[S]

	// wake holds at most one pending wakeup for Run.
	wake chan struct{}
}

// NewSampleQueue returns an empty queue. media labels log lines and
// metrics ("video", "audio").
func NewSampleQueue[S any](media string, capacity int, metrics *Metrics) *SampleQueue[S] {
	return &SampleQueue[S]{
		media:    media,
		capacity: capacity,
		metrics:  metrics,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue offers one frame and reports whether it will be delivered.
// A false return is expected under load and is not an error.
func (q *SampleQueue[S]) Enqueue(samples []S, important bool) bool {
	frame := sampleFrame[S]{important: important, samples: samples}

	q.mu.Lock()
	admitted := true
	switch {
	case important:
		q.important = append(q.important, frame)
	case len(q.important)+len(q.regular) >= q.capacity:
		admitted = false
	default:
		q.regular = append(q.regular, frame)
	}
	length := len(q.important) + len(q.regular)
	q.mu.Unlock()

	q.metrics.frameOffered(q.media, admitted)
	q.metrics.setQueueLength(q.media, length)
	q.signal()
	return admitted
}

// Clear drops queued regular frames, and important frames too when
// clearImportant is set.
func (q *SampleQueue[S]) Clear(clearImportant bool) {
	q.mu.Lock()
	clear(q.regular)
	q.regular = q.regular[:0]
	if clearImportant {
		clear(q.important)
		q.important = q.important[:0]
	}
	length := len(q.important)
	q.mu.Unlock()

	q.metrics.setQueueLength(q.media, length)
}

// Len returns the number of queued frames.
func (q *SampleQueue[S]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.important) + len(q.regular)
}

func (q *SampleQueue[S]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes the next frame to deliver.
func (q *SampleQueue[S]) pop() (sampleFrame[S], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var frame sampleFrame[S]
	switch {
	case len(q.important) > 0:
		frame = q.important[0]
		q.important[0] = sampleFrame[S]{}
		q.important = q.important[1:]
	case len(q.regular) > 0:
		frame = q.regular[0]
		q.regular[0] = sampleFrame[S]{}
		q.regular = q.regular[1:]
	default:
		return frame, false
	}
	q.metrics.setQueueLength(q.media, len(q.important)+len(q.regular))
	return frame, true
}

// Run delivers frames to track until ctx is cancelled. Each sample is
// stamped with the current absolute send time and a zero playout
// delay. A failed write is logged and delivery continues with the next
// sample.
func (q *SampleQueue[S]) Run(ctx context.Context, track Track[S], clock clock.Clock, logger *slog.Logger) {
	for {
		frame, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		for _, sample := range frame.samples {
			if err := track.WriteWithExtensions(sample, deliveryExtensions(clock.Now())); err != nil {
				q.metrics.writeFailed(q.media)
				logger.Warn("writing sample failed", "media", q.media, "important", frame.important, "error", err)
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}
