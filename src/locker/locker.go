// Package locker provides a binary gate whose callers can either take it or
// wait for the current holder to let go.
package locker

import (
	"context"
	"sync"
)

// Locker is a gate with "wait for the current holder" semantics. The zero
// value is an unlocked gate.
//
// Unlike sync.Mutex, waiting does not acquire: any number of goroutines can
// block in Wait and all of them are released by a single Unlock.
type Locker struct {
	mu   sync.Mutex
	done chan struct{} // non-nil while locked, closed on Unlock
}

// TryLock takes the gate if it is free and reports whether it did.
func (l *Locker) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return false
	}
	l.done = make(chan struct{})
	return true
}

// Lock takes the gate, waiting for any current holder first.
func (l *Locker) Lock() {
	for !l.TryLock() {
		l.Wait()
	}
}

// Unlock releases the gate and wakes every waiter. Unlocking a free gate is
// a no-op.
func (l *Locker) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return
	}
	close(l.done)
	l.done = nil
}

// IsLocked reports whether the gate is currently held.
func (l *Locker) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done != nil
}

// Wait blocks until the gate is free. It returns immediately when the gate
// is not held and never changes the gate's state.
func (l *Locker) Wait() {
	_ = l.WaitContext(context.Background())
}

// WaitContext is Wait bounded by ctx.
func (l *Locker) WaitContext(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
