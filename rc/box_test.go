package rc_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/AlexMouton/purescript-native/rc"
)

type counted struct {
	n *int32
}

func (c *counted) Finalize() { atomic.AddInt32(c.n, 1) }

func TestLastReleaseFinalizes(t *testing.T) {
	var n int32
	b := rc.New(counted{n: &n})
	require.EqualValues(t, 1, b.Count())

	b.Retain()
	require.EqualValues(t, 2, b.Count())

	b.Release()
	require.EqualValues(t, 0, n)
	require.EqualValues(t, 1, b.Count())

	b.Release()
	require.EqualValues(t, 1, n)
	require.EqualValues(t, 0, b.Count())
}

func TestGetAndAddr(t *testing.T) {
	b := rc.New(42)
	require.Equal(t, 42, *b.Get())
	require.Equal(t, unsafe.Pointer(b.Get()), b.Addr())

	*b.Get() = 7
	require.Equal(t, 7, *(*int)(b.Addr()))
	require.EqualValues(t, 1, b.Count())
	b.Release()
}

func TestDoubleReleasePanics(t *testing.T) {
	b := rc.New(1)
	b.Release()
	require.Panics(t, func() { b.Release() })
}

func TestRetainAfterReleasePanics(t *testing.T) {
	b := rc.New(1)
	b.Release()
	require.Panics(t, func() { b.Retain() })
}

func TestConcurrentRetainRelease(t *testing.T) {
	var n int32
	b := rc.New(counted{n: &n})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		b.Retain()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				b.Retain()
				b.Release()
			}
			b.Release()
		}()
	}
	wg.Wait()

	require.EqualValues(t, 0, n)
	require.EqualValues(t, 1, b.Count())
	b.Release()
	require.EqualValues(t, 1, n)
}

func TestCounters(t *testing.T) {
	a0, f0 := rc.Allocs(), rc.Frees()
	for i := 0; i < 100; i++ {
		b := rc.New(i)
		b.Release()
	}
	require.Equal(t, a0+100, rc.Allocs())
	require.Equal(t, f0+100, rc.Frees())
}
