package store

// ring is a fixed-capacity FIFO; pushing onto a full ring drops the oldest item.
type ring[T any] struct {
	items []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	idx := (r.start + r.size) % len(r.items)
	r.items[idx] = v
	if r.size < len(r.items) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.items)
}

func (r *ring[T]) len() int { return r.size }

// slice returns a copy of the items, oldest first.
func (r *ring[T]) slice() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}
