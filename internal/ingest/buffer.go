package ingest

import (
	"sync"
	"time"
)

const (
	BatchSize    = 100
	BatchTimeout = 5 * time.Second

	// MaxBuffered bounds the buffer while the sink is down; rows beyond
	// it are dropped, oldest kept.
	MaxBuffered = 100 * BatchSize
)

// BatchBuffer accumulates items until a size or time trigger flushes them
// downstream in one write.
type BatchBuffer[T any] struct {
	mu     sync.Mutex
	buffer []T
}

func NewBatchBuffer[T any]() *BatchBuffer[T] {
	return &BatchBuffer[T]{
		buffer: make([]T, 0, BatchSize),
	}
}

func (b *BatchBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, item)
}

func (b *BatchBuffer[T]) GetAndClear() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buffer) == 0 {
		return nil
	}
	batch := b.buffer
	b.buffer = make([]T, 0, BatchSize)
	return batch
}

// Requeue returns a failed batch to the front of the buffer so retried
// rows keep their arrival order ahead of anything added since. The merged
// buffer is capped at MaxBuffered; the newest rows past the cap are
// dropped and their count returned.
func (b *BatchBuffer[T]) Requeue(items []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]T, 0, len(items)+len(b.buffer))
	merged = append(merged, items...)
	merged = append(merged, b.buffer...)

	dropped := 0
	if len(merged) > MaxBuffered {
		dropped = len(merged) - MaxBuffered
		merged = merged[:MaxBuffered]
	}
	b.buffer = merged
	return dropped
}

func (b *BatchBuffer[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
