package payload

import (
	"sync/atomic"
)

// resolver is a single-assignment result. Several racing operations may try to
// resolve it; only the first one wins and every later attempt is discarded.
type resolver[T any] struct {
	resolved  atomic.Bool
	discarded atomic.Int64
	done      chan struct{}
	value     T
	err       error
}

func newResolver[T any]() *resolver[T] {
	return &resolver[T]{done: make(chan struct{})}
}

// resolve stores the outcome if nothing was stored yet and reports whether it won
func (r *resolver[T]) resolve(value T, err error) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		r.discarded.Add(1)
		return false
	}
	r.value = value
	r.err = err
	close(r.done)
	return true
}

// isResolved reports whether an outcome has been stored
func (r *resolver[T]) isResolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// result returns the stored outcome. It must only be called once done is closed.
func (r *resolver[T]) result() (T, error) {
	<-r.done
	return r.value, r.err
}
