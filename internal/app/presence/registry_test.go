package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandle struct{ name string }

func (s *stubHandle) Push([]byte) error { return nil }
func (s *stubHandle) Close(string)      {}

func TestRegistry_RegisterLookupUnregister(t *testing.T) {
	r := NewRegistry()
	h := &stubHandle{name: "a"}

	_, replaced := r.Register("A", h)
	assert.False(t, replaced)

	got, ok := r.Lookup("A")
	require.True(t, ok)
	assert.Same(t, h, got)

	r.Unregister("A")
	_, ok = r.Lookup("A")
	assert.False(t, ok)
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Register("A", &stubHandle{})

	assert.NotPanics(t, func() {
		r.Unregister("never-registered")
		r.Unregister("A")
		r.Unregister("A")
	})
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := &stubHandle{name: "first"}
	second := &stubHandle{name: "second"}

	r.Register("A", first)
	previous, replaced := r.Register("A", second)

	require.True(t, replaced)
	assert.Same(t, first, previous)

	got, _ := r.Lookup("A")
	assert.Same(t, second, got)
	assert.Equal(t, []string{"A"}, r.Snapshot(), "one entry per user id")
}

func TestRegistry_ReleaseOnlyCurrentHandle(t *testing.T) {
	r := NewRegistry()
	stale := &stubHandle{name: "stale"}
	current := &stubHandle{name: "current"}

	r.Register("A", stale)
	r.Register("A", current)

	assert.False(t, r.Release("A", stale), "superseded handle must not evict its replacement")
	got, ok := r.Lookup("A")
	require.True(t, ok)
	assert.Same(t, current, got)

	assert.True(t, r.Release("A", current))
	assert.False(t, r.Release("A", current))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SnapshotMatchesLastOperationPerID(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := NewRegistry()
	want := map[string]bool{}

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("u%d", rng.Intn(25))
		if rng.Intn(3) == 0 {
			r.Unregister(id)
			delete(want, id)
		} else {
			r.Register(id, &stubHandle{name: id})
			want[id] = true
		}
	}

	snapshot := r.Snapshot()
	assert.Len(t, snapshot, len(want))
	for _, id := range snapshot {
		assert.True(t, want[id], "stale id %s in snapshot", id)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := fmt.Sprintf("w%d-%d", w, i%10)
				h := &stubHandle{}
				r.Register(id, h)
				_, _ = r.Lookup(id)
				_ = r.Snapshot()
				r.Release(id, h)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SnapshotHasNoDuplicates(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Register("B", &stubHandle{})
		r.Register("A", &stubHandle{})
	}

	assert.Equal(t, []string{"A", "B"}, r.Snapshot())
}
