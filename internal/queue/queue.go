// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue provides the bounded FIFO that carries events from the
// poll loop to its reader.
package queue

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var ErrFull = errors.New("queue: full")

// Queue is a goroutine-safe FIFO. A zero capacity means unbounded.
type Queue[T any] struct {
	mu  sync.Mutex
	q   *queue.Queue
	cap int
}

func New[T any](capacity int) *Queue[T] {
	return &Queue[T]{q: queue.New(), cap: capacity}
}

// Push appends v unless the queue is full.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cap > 0 && q.q.Length() >= q.cap {
		return ErrFull
	}
	q.q.Add(v)
	return nil
}

// Force appends v regardless of capacity. Terminal events use it so that
// they are never dropped.
func (q *Queue[T]) Force(v T) {
	q.mu.Lock()
	q.q.Add(v)
	q.mu.Unlock()
}

// Pop removes the head, reporting false when empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.q.Remove().(T), true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}

// Full reports whether a bounded queue reached its capacity.
func (q *Queue[T]) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cap > 0 && q.q.Length() >= q.cap
}

// Clear drops every queued element.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.q = queue.New()
	q.mu.Unlock()
}
