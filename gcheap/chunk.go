package gcheap

import (
	"log"
	"unsafe"

	"golang.org/x/sys/unix"
)

const SlabSize = 1 << 24
const ChunkSizeShift = 18
const ChunkSize = 1 << 18

// Blocks carry a 4-byte size prefix padded to keep payloads 8-aligned.
const headerSize = 8

type chunkGen struct {
	curSlab []byte
}

func (g *chunkGen) gen() (res *[ChunkSize]byte) {
	if len(g.curSlab) == 0 {
		var err error
		g.curSlab, err = unix.Mmap(-1, 0, SlabSize, unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
		if err != nil {
			log.Fatal(err)
		}
	}
	*(*unsafe.Pointer)(unsafe.Pointer(&res)) = unsafe.Pointer(&g.curSlab[0])
	g.curSlab = g.curSlab[ChunkSize:]
	return res
}

// arena hands out size-prefixed blocks from mmapped chunks and reuses swept
// blocks through per-size free lists. Only pointer-free values may live here:
// the Go runtime never scans these pages.
type arena struct {
	gen    chunkGen
	chunks []*[ChunkSize]byte
	cur    unsafe.Pointer // current chunk base
	curOff uintptr
	free   map[uintptr][]unsafe.Pointer
	used   uintptr
}

func (a *arena) extend() {
	c := a.gen.gen()
	a.chunks = append(a.chunks, c)
	a.cur = unsafe.Pointer(c)
	a.curOff = 0
}

func (a *arena) alloc(n uintptr) unsafe.Pointer {
	if n == 0 {
		n = 8
	}
	n = (n + 7) &^ 7
	if n > ChunkSize-headerSize {
		log.Fatalf("gcheap: %d byte object exceeds chunk size", n)
	}
	if bl := a.free[n]; len(bl) > 0 {
		p := bl[len(bl)-1]
		a.free[n] = bl[:len(bl)-1]
		memclr(p, n)
		a.used += n
		return p
	}
	if a.cur == nil || a.curOff+headerSize+n > ChunkSize {
		a.extend()
	}
	hp := unsafe.Add(a.cur, a.curOff)
	*(*uint32)(hp) = uint32(n)
	p := unsafe.Add(hp, headerSize)
	a.curOff += headerSize + n
	a.used += n
	return p
}

func (a *arena) dealloc(p unsafe.Pointer) {
	n := uintptr(*(*uint32)(unsafe.Add(p, -headerSize)))
	a.free[n] = append(a.free[n], p)
	a.used -= n
}

func (a *arena) bytes() uintptr {
	return uintptr(len(a.chunks)) * ChunkSize
}

func memclr(p unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = 0
	}
}
