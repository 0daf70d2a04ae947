package rc

import (
	"sync/atomic"
	"unsafe"
)

// Box is a shared-ownership cell: control word and value in a single
// allocation. The count starts at 1 for the handle returned by New.
// Retain/Release are safe from any goroutine holding a live reference;
// the last release destroys the value synchronously on the releasing
// goroutine, whichever one that is.
type Box[T any] struct {
	cnt int32
	val T
}

func New[T any](v T) *Box[T] {
	atomic.AddUint64(&allocs, 1)
	return &Box[T]{cnt: 1, val: v}
}

func (b *Box[T]) Get() *T { return &b.val }

// Addr returns the managed value's address without touching the count.
func (b *Box[T]) Addr() unsafe.Pointer { return unsafe.Pointer(&b.val) }

func (b *Box[T]) Count() int32 { return atomic.LoadInt32(&b.cnt) }

func (b *Box[T]) Retain() *Box[T] {
	if atomic.AddInt32(&b.cnt, 1) <= 1 {
		panic("rc: retain of a released box")
	}
	return b
}

// Release drops one holder. At zero the value's Finalize (if implemented)
// runs exactly once, then the value is cleared so the Go heap can reclaim
// whatever it referenced. Releasing below zero is a caller bug.
func (b *Box[T]) Release() {
	n := atomic.AddInt32(&b.cnt, -1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("rc: release of a released box")
	}
	if f, ok := any(&b.val).(interface{ Finalize() }); ok {
		f.Finalize()
	}
	var zero T
	b.val = zero
	atomic.AddUint64(&frees, 1)
}

var allocs, frees uint64

func Allocs() uint64 { return atomic.LoadUint64(&allocs) }
func Frees() uint64  { return atomic.LoadUint64(&frees) }
func Live() uint64   { return Allocs() - Frees() }
