package managed_test

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AlexMouton/purescript-native/managed"
)

func TestMain(m *testing.M) {
	managed.Initialize()
	os.Exit(m.Run())
}

type vec struct {
	X, Y, Z float64
}

func TestConstructionFidelity(t *testing.T) {
	want := vec{1, 2, 3}
	r := managed.Make(want)
	managed.Pin(r)
	defer managed.Unpin(r)

	require.Equal(t, want, *r.Deref())
}

func TestAddressIdentity(t *testing.T) {
	r := managed.Make(vec{4, 5, 6})
	managed.Pin(r)
	defer managed.Unpin(r)

	p := (*vec)(r.Addr())
	require.True(t, p == r.Deref())

	p.Y = 50
	require.Equal(t, 50.0, r.Deref().Y)
}

func TestHandleEquality(t *testing.T) {
	r := managed.Make(vec{7, 8, 9})
	managed.Pin(r)
	defer managed.Unpin(r)

	cp := r
	require.True(t, cp == r)

	other := managed.Make(vec{7, 8, 9})
	managed.Pin(other)
	defer managed.Unpin(other)
	require.False(t, other == r)
}

func TestNilRef(t *testing.T) {
	var r managed.Ref[int]
	require.True(t, r.IsNil())
	require.True(t, r.Addr() == nil)

	r = managed.Make(1)
	managed.Pin(r)
	defer managed.Unpin(r)
	require.False(t, r.IsNil())
}

func TestIsRefType(t *testing.T) {
	require.False(t, managed.IsRefType[int]())
	require.False(t, managed.IsRefType[vec]())
	require.True(t, managed.IsRefType[managed.Ref[int]]())
	require.True(t, managed.IsRefType[managed.Ref[vec]]())
}

func TestMakeSlice(t *testing.T) {
	s := managed.MakeSlice[int64](4, 16)
	require.Len(t, s, 4)
	require.Equal(t, 16, cap(s))
	s = s[:16]
	for i := range s {
		s[i] = int64(i)
	}
	require.EqualValues(t, 15, s[15])

	// reference elements must stay on the Go heap in either mode
	rs := managed.MakeSlice[managed.Ref[vec]](0, 8)
	require.Equal(t, 8, cap(rs))
}

func TestStressShortLived(t *testing.T) {
	for i := 0; i < 20000; i++ {
		r := managed.Make(vec{X: float64(i)})
		r.Release()
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5000; i++ {
				r := managed.Make(vec{Y: float64(i)})
				r.Release()
			}
		}()
	}
	wg.Wait()

	managed.Collect()
	st := managed.Stats()
	require.True(t, st.Allocs >= 40000)
	require.True(t, st.Live < 1000)
}

func TestStatsBackend(t *testing.T) {
	st := managed.Stats()
	require.Equal(t, managed.Backend(), st.Backend)
	require.True(t, st.Backend == "gc" || st.Backend == "rc")
}
