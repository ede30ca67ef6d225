package event

import "sync/atomic"

type qnode[T any] struct {
	value T
	next  atomic.Pointer[qnode[T]]
}

// Queue is an unbounded multi-producer multi-consumer FIFO (Michael-Scott).
// Push and Pop never block and never take a lock.
type Queue[T any] struct {
	head atomic.Pointer[qnode[T]]
	tail atomic.Pointer[qnode[T]]
	len  atomic.Int64
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	dummy := &qnode[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *Queue[T]) Push(v T) {
	n := &qnode[T]{value: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next != nil {
			// Tail is lagging; help it forward.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.len.Add(1)
			return
		}
	}
}

func (q *Queue[T]) Pop() (T, bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if next == nil {
			var zero T
			return zero, false
		}
		if head == tail {
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		v := next.value
		if q.head.CompareAndSwap(head, next) {
			q.len.Add(-1)
			return v, true
		}
	}
}

// Len is approximate while producers or consumers are active.
func (q *Queue[T]) Len() int {
	if n := q.len.Load(); n > 0 {
		return int(n)
	}
	return 0
}
