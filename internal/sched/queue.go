// Package sched provides the priority-indexed ready queue used by the per-core
// thread schedulers. The queue itself is generic and knows nothing about
// threads; each level is a FIFO and lower numeric priority is more urgent.
package sched

import "fmt"

// Queue is a fixed set of FIFO levels indexed by priority.
type Queue[T comparable] struct {
	levels [][]T
}

// NewQueue constructs a queue with the given number of priority levels.
func NewQueue[T comparable](levels int) *Queue[T] {
	if levels <= 0 {
		panic(fmt.Sprintf("sched: invalid level count %d", levels))
	}
	return &Queue[T]{levels: make([][]T, levels)}
}

// Levels returns the number of priority levels.
func (q *Queue[T]) Levels() int {
	return len(q.levels)
}

func (q *Queue[T]) checkPriority(priority uint32) {
	if int(priority) >= len(q.levels) {
		panic(fmt.Sprintf("sched: priority %d out of range (max %d)", priority, len(q.levels)-1))
	}
}

// PushBack appends v to the end of its priority level.
func (q *Queue[T]) PushBack(priority uint32, v T) {
	q.checkPriority(priority)
	q.levels[priority] = append(q.levels[priority], v)
}

// PushFront inserts v at the head of its priority level. Used when a thread is
// preempted without yielding so it resumes before its FIFO peers.
func (q *Queue[T]) PushFront(priority uint32, v T) {
	q.checkPriority(priority)
	q.levels[priority] = append([]T{v}, q.levels[priority]...)
}

// Remove deletes the first occurrence of v from the given level and reports
// whether it was present.
func (q *Queue[T]) Remove(priority uint32, v T) bool {
	q.checkPriority(priority)
	level := q.levels[priority]
	for i, cand := range level {
		if cand == v {
			copy(level[i:], level[i+1:])
			var zero T
			level[len(level)-1] = zero
			q.levels[priority] = level[:len(level)-1]
			return true
		}
	}
	return false
}

// Move removes v from one level and appends it to the back of another.
func (q *Queue[T]) Move(v T, from, to uint32) {
	if !q.Remove(from, v) {
		panic("sched: moved item not present at source priority")
	}
	q.PushBack(to, v)
}

// PopFirst removes and returns the front item of the most urgent non-empty
// level.
func (q *Queue[T]) PopFirst() (T, bool) {
	for priority, level := range q.levels {
		if len(level) == 0 {
			continue
		}
		v := level[0]
		var zero T
		copy(level, level[1:])
		level[len(level)-1] = zero
		q.levels[priority] = level[:len(level)-1]
		return v, true
	}
	var zero T
	return zero, false
}

// PopFirstBetter removes and returns the front item of the most urgent
// non-empty level strictly more urgent than the given priority.
func (q *Queue[T]) PopFirstBetter(priority uint32) (T, bool) {
	limit := int(priority)
	if limit > len(q.levels) {
		limit = len(q.levels)
	}
	for p := 0; p < limit; p++ {
		level := q.levels[p]
		if len(level) == 0 {
			continue
		}
		v := level[0]
		var zero T
		copy(level, level[1:])
		level[len(level)-1] = zero
		q.levels[p] = level[:len(level)-1]
		return v, true
	}
	var zero T
	return zero, false
}

// Contains reports whether v is queued at the given priority.
func (q *Queue[T]) Contains(priority uint32, v T) bool {
	q.checkPriority(priority)
	for _, cand := range q.levels[priority] {
		if cand == v {
			return true
		}
	}
	return false
}

// Empty reports whether no item is queued at any level.
func (q *Queue[T]) Empty() bool {
	for _, level := range q.levels {
		if len(level) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of queued items.
func (q *Queue[T]) Len() int {
	n := 0
	for _, level := range q.levels {
		n += len(level)
	}
	return n
}
