// Package future provides a value that becomes available at some later
// point: a Promise[T] is set exactly once, from whatever goroutine
// computes the result, and every registered callback runs either right
// away (if the value is already set) or the moment Set is called.
package future

import (
	"sync"

	"github.com/alxayo/omaf-creator/internal/omaf/errs"
)

// CallbackKey identifies a registered callback so it can be removed
// again with RemoveCallback. NoCallback means "no callback was
// registered" (Then invoked it immediately instead) and is always safe
// to pass to RemoveCallback as a no-op.
type CallbackKey uint64

// NoCallback is the key Then returns when it invoked the callback
// immediately rather than registering it.
const NoCallback CallbackKey = 0

type state[T any] struct {
	mu        sync.Mutex
	callbacks map[CallbackKey]func(T)
	keyGen    CallbackKey
	value     *T
}

// Future is the read side of a Promise: callers register interest via
// Then without being able to set the value themselves.
type Future[T any] struct {
	s *state[T]
}

// Then registers cb to run once the future resolves. If it has already
// resolved, cb runs immediately (synchronously, on the calling
// goroutine, with the lock released first) and Then returns NoCallback.
// Otherwise it returns a key usable with RemoveCallback to cancel the
// registration before it fires.
func (f Future[T]) Then(cb func(T)) CallbackKey {
	f.s.mu.Lock()
	if f.s.value != nil {
		v := *f.s.value
		f.s.mu.Unlock()
		cb(v)
		return NoCallback
	}
	f.s.keyGen++
	key := f.s.keyGen
	f.s.callbacks[key] = cb
	f.s.mu.Unlock()
	return key
}

// RemoveCallback cancels a callback registered via Then, if it has not
// already fired. Passing NoCallback is a no-op.
func (f Future[T]) RemoveCallback(key CallbackKey) {
	if key == NoCallback {
		return
	}
	f.s.mu.Lock()
	delete(f.s.callbacks, key)
	f.s.mu.Unlock()
}

// Promise is the write side: exactly one goroutine calls Set, after
// which every registered (and every future) callback observes the same
// value.
type Promise[T any] struct {
	Future[T]
}

// NewPromise returns a Promise with no value set yet.
func NewPromise[T any]() Promise[T] {
	return Promise[T]{Future[T]{s: &state[T]{callbacks: make(map[CallbackKey]func(T))}}}
}

// ResolvedPromise returns a Promise whose value is already set to v.
func ResolvedPromise[T any](v T) Promise[T] {
	p := NewPromise[T]()
	p.Set(v)
	return p
}

// Set assigns v as the promise's value and runs every callback
// registered so far. It returns errs.ErrPromiseAlreadySet if called
// twice, since a Promise models a value computed exactly once.
func (p Promise[T]) Set(v T) error {
	p.s.mu.Lock()
	if p.s.value != nil {
		p.s.mu.Unlock()
		return errs.ErrPromiseAlreadySet
	}
	p.s.value = &v
	cbs := make([]func(T), 0, len(p.s.callbacks))
	for _, cb := range p.s.callbacks {
		cbs = append(cbs, cb)
	}
	p.s.callbacks = nil
	p.s.mu.Unlock()

	for _, cb := range cbs {
		cb(v)
	}
	return nil
}

// GetFuture returns the read-only Future view of this promise, safe to
// hand out to callers that should not be able to Set it.
func (p Promise[T]) GetFuture() Future[T] { return p.Future }
