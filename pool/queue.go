package pool

// fifo is an unbounded ring-buffer queue of pending items.
// It is not safe for concurrent use; the pool mutex guards it.
type fifo[T any] struct {
	buf   []T
	head  int
	count int
}

const minQueueCapacity = 16

func (q *fifo[T]) Len() int {
	return q.count
}

func (q *fifo[T]) push(v T) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return v, true
}

// drain empties the queue and returns how many items it held.
func (q *fifo[T]) drain() int {
	n := q.count
	q.buf = nil
	q.head = 0
	q.count = 0
	return n
}

func (q *fifo[T]) grow() {
	size := max(len(q.buf)*2, minQueueCapacity)
	buf := make([]T, size)
	for i := range q.count {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
}
