// Package queue implements a navigable sequence with a single current position.
package queue

// Queue holds the items before the current one, the current item, and the
// items after it. Previous is ordered oldest first; Next is ordered soonest
// first, so Next[0] is the item a forward move lands on.
type Queue[T any] struct {
	Previous []T
	Current  T
	Next     []T
}

// New builds a queue positioned at current with the given upcoming items.
func New[T any](current T, next ...T) Queue[T] {
	return Queue[T]{Current: current, Next: next}
}

// Len returns the total number of items in the queue.
func (q Queue[T]) Len() int {
	return len(q.Previous) + 1 + len(q.Next)
}

// TryForward moves the current position one item forward. It reports false
// and returns the queue unchanged when there is no next item.
func (q Queue[T]) TryForward() (Queue[T], bool) {
	if len(q.Next) == 0 {
		return q, false
	}

	previous := make([]T, 0, len(q.Previous)+1)
	previous = append(previous, q.Previous...)
	previous = append(previous, q.Current)

	next := make([]T, len(q.Next)-1)
	copy(next, q.Next[1:])

	return Queue[T]{
		Previous: previous,
		Current:  q.Next[0],
		Next:     next,
	}, true
}

// TryBack moves the current position one item back. It reports false and
// returns the queue unchanged when there is no previous item.
func (q Queue[T]) TryBack() (Queue[T], bool) {
	if len(q.Previous) == 0 {
		return q, false
	}

	previous := make([]T, len(q.Previous)-1)
	copy(previous, q.Previous[:len(q.Previous)-1])

	next := make([]T, 0, len(q.Next)+1)
	next = append(next, q.Current)
	next = append(next, q.Next...)

	return Queue[T]{
		Previous: previous,
		Current:  q.Previous[len(q.Previous)-1],
		Next:     next,
	}, true
}
