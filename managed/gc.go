//go:build usegc

package managed

import (
	"reflect"
	"unsafe"

	"github.com/modern-go/reflect2"

	"github.com/AlexMouton/purescript-native/gcheap"
)

// Ref is a non-owning alias into collector-managed memory. Any number of
// copies may refer to one object; liveness is decided by the collector from
// the registered root set, never by the handles themselves.
type Ref[T any] struct {
	p *T
}

func (r Ref[T]) managedHandle() {}

func (r Ref[T]) Deref() *T { return r.p }

func (r Ref[T]) IsNil() bool { return r.p == nil }

// Addr returns the referent's address without affecting its lifetime.
func (r Ref[T]) Addr() unsafe.Pointer { return unsafe.Pointer(r.p) }

// Retain and Release are no-ops: tracing handles do not own their referent.
func (r Ref[T]) Retain() Ref[T] { return r }

func (r Ref[T]) Release() {}

// Make allocates collector-managed storage initialized to v.
func Make[T any](v T) Ref[T] {
	return Ref[T]{p: gcheap.New[T](v, nil)}
}

// MakeFinalized is Make plus finalization: if *T implements Finalizer, the
// collector runs it exactly once when the object is reclaimed, strictly
// before the memory is reused.
func MakeFinalized[T any](v T) Ref[T] {
	return Ref[T]{p: gcheap.New[T](v, func(p unsafe.Pointer) {
		if f, ok := any((*T)(p)).(Finalizer); ok {
			f.Finalize()
		}
	})}
}

// Pin roots r's referent until a matching Unpin. Pins nest. The collector
// sees no Go stacks, so anything that must survive a collection while held
// only in locals has to be pinned.
func Pin[T any](r Ref[T]) {
	if r.p != nil {
		gcheap.AddRoot(unsafe.Pointer(r.p), reflect.TypeOf(r.p).Elem())
	}
}

func Unpin[T any](r Ref[T]) {
	if r.p != nil {
		gcheap.RemoveRoot(unsafe.Pointer(r.p))
	}
}

// IsRefType reports whether T's own representation is pointer-like, in which
// case containers of T must stay visible to the collector.
func IsRefType[T any]() bool {
	var z T
	if _, ok := any(z).(handle); ok {
		return true
	}
	return reflect2.Type2(reflect.TypeOf((*T)(nil)).Elem()).LikePtr()
}

// MakeSlice is the container adapter: pointer-free element types get a
// collector-managed backing array; anything carrying references stays on the
// Go heap, where the collector traces it in place.
func MakeSlice[T any](length, capacity int) []T {
	if gcheap.TypePointers(reflect.TypeOf((*T)(nil)).Elem()) {
		return make([]T, length, capacity)
	}
	return gcheap.NewArray[T](capacity)[:length]
}

// Initialize prepares the tracing engine. It must run exactly once, before
// the first Make, and never concurrently with itself.
func Initialize() { gcheap.Init() }

// Collect forces a full collection cycle.
func Collect() { gcheap.Collect() }

func Backend() string { return "gc" }

func Stats() RuntimeStats {
	hs := gcheap.Stats()
	return RuntimeStats{
		Backend:     "gc",
		Live:        hs.Live,
		Allocs:      hs.Allocs,
		Frees:       hs.Frees,
		Collections: hs.Collections,
	}
}
