// Package gcheap is the tracing engine behind the managed-reference facade's
// gc backend. It keeps an object table and an explicit root set; a collection
// marks everything reachable from the roots and sweeps the rest, running
// per-object finalizers strictly before their memory can be reused.
//
// The engine cannot see Go stacks, so an object is considered reachable only
// through registered roots (or through the fields of reachable objects).
// Object addresses are assumed stable for the life of the object.
//
// Collection runs under the allocation lock and stops allocators, not
// mutators: the reachable object graph (roots included) must not be mutated
// while another goroutine allocates or collects. Writing a map inside a
// rooted object during a concurrent cycle is a fatal race with the scanner.
package gcheap

import (
	"reflect"
	"sync"
	"unsafe"

	_ "go4.org/unsafe/assume-no-moving-gc"
)

// object is one collector-managed allocation.
type object struct {
	addr  unsafe.Pointer
	typ   reflect.Type
	fin   func(unsafe.Pointer)
	keep  any // pins Go-heap storage; nil when the value lives in the arena
	inAr  bool
	scan  bool
	mark  bool
	fresh bool // allocated since the last cycle; spared by opportunistic cycles
}

type root struct {
	typ reflect.Type
	n   int
}

type heap struct {
	mu      sync.Mutex
	objects map[uintptr]*object
	roots   map[unsafe.Pointer]*root
	ar      arena
	trigger int

	allocs      uint64
	frees       uint64
	collections uint64
	finalized   uint64
}

const defaultTrigger = 1 << 16

var h heap

// Init prepares the engine. It must run exactly once, before the first
// allocation, and never concurrently with itself or with an allocation.
// Allocating before Init, or calling Init twice, is undefined.
func Init() {
	h.objects = make(map[uintptr]*object)
	h.roots = make(map[unsafe.Pointer]*root)
	h.ar.free = make(map[uintptr][]unsafe.Pointer)
	h.trigger = defaultTrigger
}

// New allocates collector-managed storage initialized to v. fin, if non-nil,
// runs exactly once when the object is reclaimed, before its memory is
// reused; it must not allocate through the collector. Pointer-free values go
// to the mmapped arena, anything the Go runtime must see stays on the Go heap
// pinned by the object table.
//
// Exhaustion of the underlying mapping is fatal; there is no error return.
func New[T any](v T, fin func(unsafe.Pointer)) *T {
	t := reflect.TypeOf(&v).Elem()
	h.mu.Lock()
	o := &object{fin: fin, typ: t, fresh: true}
	var p *T
	if !TypePointers(t) {
		p = (*T)(h.ar.alloc(t.Size()))
		*p = v
		o.inAr = true
	} else {
		p = new(T)
		*p = v
		o.keep = p
		o.scan = TypePointers(t)
	}
	o.addr = unsafe.Pointer(p)
	h.objects[uintptr(o.addr)] = o
	h.allocs++
	if len(h.objects) > h.trigger {
		h.collect(false)
	}
	h.mu.Unlock()
	return p
}

// NewArray allocates a collector-managed backing array for n values of T.
// T must be pointer-free; use an ordinary make for anything else.
func NewArray[T any](n int) []T {
	if n <= 0 {
		return nil
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	h.mu.Lock()
	p := h.ar.alloc(uintptr(n) * t.Size())
	o := &object{addr: p, typ: reflect.ArrayOf(n, t), inAr: true, fresh: true}
	h.objects[uintptr(p)] = o
	h.allocs++
	h.mu.Unlock()
	return unsafe.Slice((*T)(p), n)
}

// AddRoot marks the value of type t at p as always reachable. If p is itself
// a managed object it is kept alive and scanned; otherwise the memory at p is
// scanned for managed references every cycle. Roots nest: n AddRoot calls
// need n RemoveRoot calls.
//
// The root set retains p as a pointer, so a value whose address is registered
// escapes to the heap and its address stays stable. Registering an address
// obtained by other means (uintptr arithmetic, stack memory kept alive by
// hand) is undefined: goroutine stacks move.
func AddRoot(p unsafe.Pointer, t reflect.Type) {
	h.mu.Lock()
	if r := h.roots[p]; r != nil {
		r.n++
	} else {
		h.roots[p] = &root{typ: t, n: 1}
	}
	h.mu.Unlock()
}

func RemoveRoot(p unsafe.Pointer) {
	h.mu.Lock()
	if r := h.roots[p]; r != nil {
		r.n--
		if r.n == 0 {
			delete(h.roots, p)
		}
	}
	h.mu.Unlock()
}

// Collect forces a full cycle: everything unreachable from the root set is
// finalized and swept, including allocations made since the previous cycle.
// The reachable graph must be quiescent for the duration of the cycle; only
// allocators are stopped by the heap lock.
func Collect() {
	h.mu.Lock()
	h.collect(true)
	h.mu.Unlock()
}

// collect runs under h.mu. Opportunistic cycles (full=false, triggered from
// New) spare fresh objects so a caller can pin a handle before the collector
// first looks at it.
func (hp *heap) collect(full bool) {
	hp.collections++
	s := scanner{hp: hp, seen: make(map[uintptr]struct{})}
	for p, r := range hp.roots {
		if o := hp.objects[uintptr(p)]; o != nil {
			s.markObject(o)
		} else if r.typ != nil && TypePointers(r.typ) {
			s.value(p, r.typ)
		}
	}
	if !full {
		for _, o := range hp.objects {
			if o.fresh {
				s.markObject(o)
			}
		}
	}
	s.drain()
	for a, o := range hp.objects {
		if o.mark {
			o.mark = false
			o.fresh = false
			continue
		}
		if o.fin != nil {
			o.fin(o.addr)
			hp.finalized++
		}
		if o.inAr {
			hp.ar.dealloc(o.addr)
		}
		delete(hp.objects, a)
		hp.frees++
	}
	hp.trigger = 2 * len(hp.objects)
	if hp.trigger < defaultTrigger {
		hp.trigger = defaultTrigger
	}
}

type HeapStats struct {
	Live        uint64 `json:"live"`
	Allocs      uint64 `json:"allocs"`
	Frees       uint64 `json:"frees"`
	Collections uint64 `json:"collections"`
	Finalized   uint64 `json:"finalized"`
	Roots       int    `json:"roots"`
	ArenaBytes  uint64 `json:"arena_bytes"`
	ArenaUsed   uint64 `json:"arena_used"`
}

func Stats() HeapStats {
	h.mu.Lock()
	st := HeapStats{
		Live:        uint64(len(h.objects)),
		Allocs:      h.allocs,
		Frees:       h.frees,
		Collections: h.collections,
		Finalized:   h.finalized,
		Roots:       len(h.roots),
		ArenaBytes:  uint64(h.ar.bytes()),
		ArenaUsed:   uint64(h.ar.used),
	}
	h.mu.Unlock()
	return st
}
