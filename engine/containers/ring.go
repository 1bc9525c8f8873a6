package containers

// Ring is a fixed-size circular buffer that overwrites its oldest element
// once full.
type Ring[T any] struct {
	data       []T
	size       int
	writeIndex int
	count      int
}

func NewRing[T any](size int) *Ring[T] {
	if size < 1 {
		size = 1
	}
	return &Ring[T]{
		data: make([]T, size),
		size: size,
	}
}

// Push returns true if an element was evicted.
func (r *Ring[T]) Push(value T) bool {
	r.data[r.writeIndex] = value
	r.writeIndex = (r.writeIndex + 1) % r.size
	if r.count == r.size {
		return true
	}
	r.count++
	return false
}

// Oldest returns the element that the next Push overwrites when full.
func (r *Ring[T]) Oldest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	if r.count < r.size {
		return r.data[0], true
	}
	return r.data[r.writeIndex], true
}

// Each visits elements from oldest to newest.
func (r *Ring[T]) Each(fn func(T)) {
	start := 0
	if r.count == r.size {
		start = r.writeIndex
	}
	for i := 0; i < r.count; i++ {
		fn(r.data[(start+i)%r.size])
	}
}

func (r *Ring[T]) Len() int {
	return r.count
}

func (r *Ring[T]) Cap() int {
	return r.size
}

func (r *Ring[T]) IsEmpty() bool {
	return r.count == 0
}

func (r *Ring[T]) Full() bool {
	return r.count == r.size
}

func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.writeIndex = 0
	r.count = 0
}
