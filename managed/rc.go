//go:build !usegc

package managed

import (
	"unsafe"

	"github.com/AlexMouton/purescript-native/rc"
)

// Ref is a shared-ownership handle. Copies obtained through Retain share one
// count; the referent is destroyed synchronously when the last holder calls
// Release.
type Ref[T any] struct {
	b *rc.Box[T]
}

func (r Ref[T]) managedHandle() {}

func (r Ref[T]) Deref() *T { return r.b.Get() }

func (r Ref[T]) IsNil() bool { return r.b == nil }

// Addr returns the referent's address without touching the count.
func (r Ref[T]) Addr() unsafe.Pointer {
	if r.b == nil {
		return nil
	}
	return r.b.Addr()
}

func (r Ref[T]) Retain() Ref[T] {
	if r.b != nil {
		r.b.Retain()
	}
	return r
}

func (r Ref[T]) Release() {
	if r.b != nil {
		r.b.Release()
	}
}

// Make allocates a control block and value together, count = 1.
func Make[T any](v T) Ref[T] { return Ref[T]{b: rc.New(v)} }

// MakeFinalized is identical to Make: last-release already runs Finalize
// deterministically, so no separate registration is needed.
func MakeFinalized[T any](v T) Ref[T] { return Make(v) }

// Pin takes an extra hold on the referent; Unpin drops it. Pins nest.
func Pin[T any](r Ref[T]) { r.Retain() }

func Unpin[T any](r Ref[T]) { r.Release() }

// IsRefType reports whether T itself denotes a managed handle rather than a
// plain value.
func IsRefType[T any]() bool {
	var z T
	_, ok := any(z).(handle)
	return ok
}

func MakeSlice[T any](length, capacity int) []T {
	return make([]T, length, capacity)
}

// Initialize is a no-op: this backend needs no global state.
func Initialize() {}

// Collect is a no-op: reclamation is deterministic on last release.
func Collect() {}

func Backend() string { return "rc" }

func Stats() RuntimeStats {
	return RuntimeStats{
		Backend: "rc",
		Live:    rc.Live(),
		Allocs:  rc.Allocs(),
		Frees:   rc.Frees(),
	}
}
