// Package ring implements the bounded FIFO buffer backing the store's
// live feed and round history.
package ring

// Buffer is a fixed-capacity FIFO buffer. Appending beyond capacity evicts
// the oldest entry. The zero value is not usable, use New.
type Buffer[T any] struct {
	items []T
	start int
	size  int
}

// New creates a buffer with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest entry when the buffer is full.
func (b *Buffer[T]) Append(item T) {
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = item
		b.size++
		return
	}
	b.items[b.start] = item
	b.start = (b.start + 1) % len(b.items)
}

// Len returns the number of items currently held.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Items returns a copy of the contents ordered oldest to newest.
func (b *Buffer[T]) Items() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

// Newest returns a copy of the most recent n items ordered oldest to newest.
func (b *Buffer[T]) Newest(n int) []T {
	if n > b.size {
		n = b.size
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.items[(b.start+b.size-n+i)%len(b.items)]
	}
	return out
}

// Resize changes the capacity, preserving the newest entries that fit.
func (b *Buffer[T]) Resize(capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	if capacity == len(b.items) {
		return
	}
	kept := b.Newest(capacity)
	b.items = make([]T, capacity)
	copy(b.items, kept)
	b.start = 0
	b.size = len(kept)
}
