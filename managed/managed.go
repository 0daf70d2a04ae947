// Package managed is the allocation facade of the runtime: one reference
// type, two factories, and a reclamation strategy fixed for the whole program
// at build time. Building with -tags usegc links the tracing backend over
// gcheap; the default build links the reference-counting backend over rc.
// Call sites are identical under both and must treat Ref as opaque: always
// construct through Make/MakeFinalized, never assume which backend is linked,
// and never assume destruction timing unless the rc backend is known.
package managed

// Finalizer is implemented by values that need cleanup when their managed
// storage is reclaimed. The tracing backend runs Finalize at collection time,
// at most once, at a point of the collector's choosing (possibly never, if
// the process exits first); the reference-counting backend runs it
// synchronously on last release.
type Finalizer interface {
	Finalize()
}

// RuntimeStats reports allocation counters for the linked backend.
// Collections stays zero under the reference-counting backend.
type RuntimeStats struct {
	Backend     string `json:"backend"`
	Live        uint64 `json:"live"`
	Allocs      uint64 `json:"allocs"`
	Frees       uint64 `json:"frees"`
	Collections uint64 `json:"collections"`
}

// handle marks types that are themselves managed references.
type handle interface {
	managedHandle()
}
