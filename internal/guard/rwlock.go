// Package guard provides a cooperative reader-writer lock and a generic
// guarded-value wrapper. The lock never blocks an OS thread on the fast
// path: acquisition is a CAS attempt, and contended callers park on a
// broadcast channel until the next release, then race to retry. No
// fairness is provided — a steady stream of shared acquisitions can
// starve a pending exclusive acquirer.
package guard

import (
	"sync"
	"sync/atomic"
)

// Lock state encoding: 0 free, n > 0 shared holder count, -1 exclusive.
const exclusiveHeld = -1

// AsyncRWLock is a reader-writer lock whose acquisition suspends the
// calling goroutine without holding any OS-level resource. There is no
// timeout and no cancellation: a pending acquire retries until it wins.
//
// The zero value is not usable; construct with NewAsyncRWLock.
type AsyncRWLock struct {
	state atomic.Int64

	mu   sync.Mutex
	wake chan struct{}
}

// NewAsyncRWLock creates an unlocked AsyncRWLock.
func NewAsyncRWLock() *AsyncRWLock {
	return &AsyncRWLock{wake: make(chan struct{})}
}

// AcquireShared obtains the lock in shared mode, suspending the caller
// until no exclusive holder exists.
//
// Postcondition: Returns a non-nil SharedGuard; the shared holder count
// has been incremented by one.
func (l *AsyncRWLock) AcquireShared() *SharedGuard {
	for {
		ch := l.wakeChannel()
		if l.tryShared() {
			return &SharedGuard{lock: l}
		}
		<-ch
	}
}

// AcquireExclusive obtains the lock in exclusive mode, suspending the
// caller until no other holder exists.
//
// Postcondition: Returns a non-nil ExclusiveGuard; the lock state is
// exclusive and no shared holders remain.
func (l *AsyncRWLock) AcquireExclusive() *ExclusiveGuard {
	for {
		ch := l.wakeChannel()
		if l.tryExclusive() {
			return &ExclusiveGuard{lock: l}
		}
		<-ch
	}
}

// TryAcquireShared attempts a shared acquisition without suspending.
//
// Postcondition: Returns (guard, true) on success or (nil, false) if an
// exclusive holder exists.
func (l *AsyncRWLock) TryAcquireShared() (*SharedGuard, bool) {
	if l.tryShared() {
		return &SharedGuard{lock: l}, true
	}
	return nil, false
}

// TryAcquireExclusive attempts an exclusive acquisition without suspending.
func (l *AsyncRWLock) TryAcquireExclusive() (*ExclusiveGuard, bool) {
	if l.tryExclusive() {
		return &ExclusiveGuard{lock: l}, true
	}
	return nil, false
}

func (l *AsyncRWLock) tryShared() bool {
	for {
		s := l.state.Load()
		if s < 0 {
			return false
		}
		if l.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

func (l *AsyncRWLock) tryExclusive() bool {
	return l.state.CompareAndSwap(0, exclusiveHeld)
}

// wakeChannel returns the channel the next release will close. It must
// be read before the acquisition attempt so a release between the
// failed attempt and the park cannot be missed.
func (l *AsyncRWLock) wakeChannel() <-chan struct{} {
	l.mu.Lock()
	ch := l.wake
	l.mu.Unlock()
	return ch
}

// broadcast wakes every parked acquirer. Woken goroutines race on the
// next CAS; whoever loses parks again.
func (l *AsyncRWLock) broadcast() {
	l.mu.Lock()
	close(l.wake)
	l.wake = make(chan struct{})
	l.mu.Unlock()
}

func (l *AsyncRWLock) releaseShared() {
	n := l.state.Add(-1)
	if n < 0 {
		panic("guard: shared release of unheld lock")
	}
	if n == 0 {
		l.broadcast()
	}
}

func (l *AsyncRWLock) releaseExclusive() {
	if !l.state.CompareAndSwap(exclusiveHeld, 0) {
		panic("guard: exclusive release of unheld lock")
	}
	l.broadcast()
}

// Holders reports the current holder count: 0 free, n > 0 shared
// holders, -1 exclusive. Intended for assertions and tests.
func (l *AsyncRWLock) Holders() int64 {
	return l.state.Load()
}

// SharedGuard is the handle for a shared acquisition. Release must be
// called when access ends; calling it more than once is a no-op.
type SharedGuard struct {
	lock     *AsyncRWLock
	released atomic.Bool
}

// Release drops the shared hold. Safe to call multiple times; only the
// first call decrements the holder count.
func (g *SharedGuard) Release() {
	if g.released.Swap(true) {
		return
	}
	g.lock.releaseShared()
}

// ExclusiveGuard is the handle for an exclusive acquisition. Release
// must be called when access ends; calling it more than once is a no-op.
type ExclusiveGuard struct {
	lock     *AsyncRWLock
	released atomic.Bool
}

// Release drops the exclusive hold. Safe to call multiple times; only
// the first call frees the lock.
func (g *ExclusiveGuard) Release() {
	if g.released.Swap(true) {
		return
	}
	g.lock.releaseExclusive()
}
