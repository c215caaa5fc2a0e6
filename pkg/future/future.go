// Package future provides a small settle-once result type used to hand
// asynchronous pass and fetch results between goroutines.
//
// A Future is resolved exactly once with a value and an error. Waiters block on
// Done() or Wait(); late resolutions are ignored.
package future

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Future holds the eventual outcome of an asynchronous operation.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// New returns an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v, nil)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	var zero T
	f.Resolve(zero, err)
	return f
}

// Go runs fn on a new goroutine and settles the returned future with its
// result. A panic inside fn settles the future with an error.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := New[T]()
	go func() {
		v, err := Safe(fn)
		f.Resolve(v, err)
	}()
	return f
}

// Safe calls fn and converts a panic into an error.
func Safe[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// Resolve settles the future. It reports whether this call won; subsequent
// calls are no-ops.
func (f *Future[T]) Resolve(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		won = true
		close(f.done)
	})
	return won
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled outcome without blocking. ok is false while the
// future is still pending.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then returns a future settled with fn applied to f's outcome once f settles.
func Then[T, U any](f *Future[T], fn func(T, error) (U, error)) *Future[U] {
	return Go(func() (U, error) {
		<-f.done
		return fn(f.val, f.err)
	})
}

// All resolves with every value, in input order, once all inputs succeed. It
// rejects with the first error as soon as any input fails; the remaining
// inputs keep running and their outcomes are dropped.
func All[T any](fs []*Future[T]) *Future[[]T] {
	out := New[[]T]()
	if len(fs) == 0 {
		out.Resolve([]T{}, nil)
		return out
	}

	vals := make([]T, len(fs))
	var (
		mu        sync.Mutex
		remaining = len(fs)
	)
	for i, f := range fs {
		go func() {
			<-f.done
			if f.err != nil {
				out.Resolve(nil, f.err)
				return
			}
			mu.Lock()
			vals[i] = f.val
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				out.Resolve(vals, nil)
			}
		}()
	}
	return out
}

// Settled returns a channel closed once every input has settled, successfully
// or not. A failing input never short-circuits the wait.
func Settled[T any](fs ...*Future[T]) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		for _, f := range fs {
			if f != nil {
				<-f.done
			}
		}
		close(ch)
	}()
	return ch
}
