package lin

// Ring is a fixed-capacity circular buffer. It is not safe for
// concurrent use.
type Ring[T any] struct {
	data   []T
	head   int // next read
	tail   int // next write
	length int
}

// NewRing creates a Ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("lin: ring capacity must be positive")
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.length
}

// Head returns the index of the next element to read.
func (r *Ring[T]) Head() int {
	return r.head
}

// Tail returns the index the next written element will occupy.
func (r *Ring[T]) Tail() int {
	return r.tail
}

// Write appends v. A full ring is left unchanged.
func (r *Ring[T]) Write(v T) error {
	if r.length >= len(r.data) {
		return ErrBufferOverflow
	}
	r.data[r.tail] = v
	r.tail = (r.tail + 1) % len(r.data)
	r.length++
	return nil
}

// Read removes and returns the oldest element.
func (r *Ring[T]) Read() (v T, err error) {
	if v, err = r.Peek(); err != nil {
		return
	}
	r.head = (r.head + 1) % len(r.data)
	r.length--
	return
}

// Peek returns the oldest element without removing it.
func (r *Ring[T]) Peek() (v T, err error) {
	if r.length == 0 {
		return v, ErrBufferEmpty
	}
	return r.data[r.head], nil
}

// Distance returns how many reads it takes for Head to reach pos.
// The result exceeds Len when pos is not within the stored window.
func (r *Ring[T]) Distance(pos int) int {
	n := len(r.data)
	return ((pos-r.head)%n + n) % n
}

// Discard drops up to n oldest elements and returns the number dropped.
func (r *Ring[T]) Discard(n int) int {
	if n > r.length {
		n = r.length
	}
	if n <= 0 {
		return 0
	}
	r.head = (r.head + n) % len(r.data)
	r.length -= n
	return n
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head, r.tail, r.length = 0, 0, 0
}
