//go:build !usegc

package managed_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AlexMouton/purescript-native/managed"
)

type counted struct {
	n *int32
}

func (c *counted) Finalize() { atomic.AddInt32(c.n, 1) }

func TestCopySafety(t *testing.T) {
	var n int32
	r := managed.MakeFinalized(counted{n: &n})
	cp := r.Retain()

	r.Release()
	require.EqualValues(t, 0, n)
	require.NotNil(t, cp.Deref().n)

	cp.Release()
	require.EqualValues(t, 1, n)
}

func TestDeterministicDestruction(t *testing.T) {
	var n int32
	for i := 0; i < 10000; i++ {
		r := managed.MakeFinalized(counted{n: &n})
		r.Release()
		require.EqualValues(t, i+1, n)
	}
}

func TestMakeFinalizedIsMake(t *testing.T) {
	// without a Finalizer implementation both factories behave identically
	r := managed.MakeFinalized(vec{1, 2, 3})
	require.Equal(t, vec{1, 2, 3}, *r.Deref())
	r.Release()
}

func TestPinIsRetain(t *testing.T) {
	var n int32
	r := managed.MakeFinalized(counted{n: &n})
	managed.Pin(r)

	r.Release()
	require.EqualValues(t, 0, n)

	managed.Unpin(r)
	require.EqualValues(t, 1, n)
}

func TestRefTypePredicate(t *testing.T) {
	// a bare pointer is not a managed handle under this backend
	require.False(t, managed.IsRefType[*int]())
}

func TestCollectIsNoop(t *testing.T) {
	var n int32
	r := managed.MakeFinalized(counted{n: &n})
	managed.Collect()
	require.EqualValues(t, 0, n)
	r.Release()
	require.EqualValues(t, 1, n)
}
