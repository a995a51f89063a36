package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next when the ring is closed for writing
// and every queued element has been consumed.
var ErrIteratorDone = errors.New("buffer: iterator done")

// Ring is a fixed-capacity FIFO queue that never blocks writers. When the
// ring is full, Add overwrites the oldest element and counts it as dropped.
// Readers block in Next until an element is available or the ring is closed.
//
// It is safe to call methods on Ring from multiple goroutines.
type Ring[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	buf        []T
	head, tail int64
	dropped    int64
	closeWrite bool
	closeErr   error
}

// RingN creates a new Ring with the specified capacity. It panics if size
// is not positive.
func RingN[T any](size int) *Ring[T] {
	if size <= 0 {
		panic("buffer: ring size must be positive")
	}
	return &Ring[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, size),
	}
}

// Add appends t to the ring. If the ring is full, the oldest element is
// discarded and Add reports dropped=true.
func (r *Ring[T]) Add(t T) (dropped bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return false, fmt.Errorf("buffer: write to closed buffer: %w", r.closeErr)
	}
	if r.closeWrite {
		return false, fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	size := int64(len(r.buf))
	if r.tail-r.head == size {
		// Full: the oldest slot is the one about to be written.
		r.head++
		r.dropped++
		dropped = true
	}
	r.buf[r.tail%size] = t
	r.tail++
	select {
	case r.writeNotify <- struct{}{}:
	default:
	}
	return dropped, nil
}

// Next removes and returns the oldest element. It blocks until an element
// is available. Once CloseWrite has been called and the ring is drained it
// returns ErrIteratorDone; after Close it returns the close error.
// Next is meant for a single consuming goroutine.
func (r *Ring[T]) Next() (t T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.closeErr != nil {
			return t, fmt.Errorf("buffer: read from closed buffer: %w", r.closeErr)
		}
		if r.head != r.tail {
			break
		}
		if r.closeWrite {
			return t, ErrIteratorDone
		}
		r.mu.Unlock()
		<-r.writeNotify
		r.mu.Lock()
	}
	size := int64(len(r.buf))
	idx := r.head % size
	t = r.buf[idx]
	var zero T
	r.buf[idx] = zero
	r.head++
	return t, nil
}

// CloseWrite stops further writes. Pending elements can still be read.
func (r *Ring[T]) CloseWrite() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeWrite {
		return nil
	}
	r.closeWrite = true
	close(r.writeNotify)
	return nil
}

// CloseWithError closes the ring immediately. Pending elements are
// discarded and blocked readers return err.
func (r *Ring[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return nil
	}
	r.closeErr = err
	if !r.closeWrite {
		r.closeWrite = true
		close(r.writeNotify)
	}
	return nil
}

// Close is equivalent to CloseWithError(io.ErrClosedPipe).
func (r *Ring[T]) Close() error {
	return r.CloseWithError(io.ErrClosedPipe)
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.tail - r.head)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Dropped returns how many elements have been overwritten before being read.
func (r *Ring[T]) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
