package guard

// GuardedState bundles a value with an AsyncRWLock. All access to the
// value flows through views obtained by acquiring the lock; a view is
// valid only until its Release.
//
// GuardedState is not copyable once in use: it owns the lock and the
// single canonical copy of the value.
type GuardedState[T any] struct {
	lock  *AsyncRWLock
	value T
}

// NewGuardedState creates a GuardedState holding value.
func NewGuardedState[T any](value T) *GuardedState[T] {
	return &GuardedState[T]{
		lock:  NewAsyncRWLock(),
		value: value,
	}
}

// RLock acquires the lock in shared mode and returns a read view.
// Callers must not mutate the value through a shared view.
func (g *GuardedState[T]) RLock() *SharedView[T] {
	return &SharedView[T]{state: g, guard: g.lock.AcquireShared()}
}

// Lock acquires the lock in exclusive mode and returns a mutable view.
func (g *GuardedState[T]) Lock() *ExclusiveView[T] {
	return &ExclusiveView[T]{state: g, guard: g.lock.AcquireExclusive()}
}

// Guards reports whether ptr is the address of this instance's guarded
// value. Shared helper code uses it to detect that it was called from
// inside a locked scope for this exact instance and must not acquire
// the lock again.
func (g *GuardedState[T]) Guards(ptr *T) bool {
	return ptr == &g.value
}

// SharedView grants read access to a guarded value for its lifetime.
type SharedView[T any] struct {
	state *GuardedState[T]
	guard *SharedGuard
}

// Value returns the guarded value. The pointer must not be retained
// past Release, and the value must not be mutated through it.
func (v *SharedView[T]) Value() *T {
	return &v.state.value
}

// Release drops the shared hold. Safe to call multiple times.
func (v *SharedView[T]) Release() {
	v.guard.Release()
}

// ExclusiveView grants mutable access to a guarded value for its lifetime.
type ExclusiveView[T any] struct {
	state *GuardedState[T]
	guard *ExclusiveGuard
}

// Value returns the guarded value. The pointer must not be retained
// past Release.
func (v *ExclusiveView[T]) Value() *T {
	return &v.state.value
}

// Release drops the exclusive hold. Safe to call multiple times.
func (v *ExclusiveView[T]) Release() {
	v.guard.Release()
}
