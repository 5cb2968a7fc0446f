package queue

// ring is a fixed-capacity FIFO. It never grows; callers guarantee that push
// is only called when there is room.
type ring[E any] struct {
	items []E
	head  int
	size  int
}

func newRing[E any](capacity int) ring[E] {
	return ring[E]{items: make([]E, capacity)}
}

func (r *ring[E]) len() int {
	return r.size
}

func (r *ring[E]) push(e E) {
	if r.size == len(r.items) {
		panic("queue: ring overflow")
	}
	r.items[(r.head+r.size)%len(r.items)] = e
	r.size++
}

func (r *ring[E]) pop() E {
	var zero E
	e := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--
	return e
}

func (r *ring[E]) reset() {
	clear(r.items)
	r.head = 0
	r.size = 0
}
