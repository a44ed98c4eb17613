package ads

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type disposals struct {
	mu   sync.Mutex
	objs map[ObjectID]int
}

func newDisposals() *disposals { return &disposals{objs: make(map[ObjectID]int)} }

func (d *disposals) dispose(obj ObjectID) {
	d.mu.Lock()
	d.objs[obj]++
	d.mu.Unlock()
}

func (d *disposals) count(obj ObjectID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.objs[obj]
}

func TestRegistryPutGetRemove(t *testing.T) {
	d := newDisposals()
	reg := NewRegistry(d.dispose)

	h := &Handle{ID: "b1", Kind: KindBanner, UnitID: "unit1", Object: "obj-1"}
	require.NoError(t, reg.Put("b1", h))

	got, ok := reg.Get("b1")
	require.True(t, ok)
	assert.Same(t, h, got)

	id, ok := reg.ReverseLookup("obj-1")
	require.True(t, ok)
	assert.Equal(t, Identifier("b1"), id)

	assert.True(t, reg.Remove("b1"))
	_, ok = reg.Get("b1")
	assert.False(t, ok)
	_, ok = reg.ReverseLookup("obj-1")
	assert.False(t, ok, "remove releases the reverse entry")
	assert.Equal(t, 1, d.count("obj-1"))

	assert.False(t, reg.Remove("b1"), "second remove is a no-op")
	assert.Equal(t, 1, d.count("obj-1"), "object disposed exactly once")
}

func TestRegistryDuplicateIdentifier(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Put("x", &Handle{ID: "x", Object: "o1"}))

	err := reg.Put("x", &Handle{ID: "x", Object: "o2"})
	require.ErrorIs(t, err, ErrDuplicateIdentifier)

	h, _ := reg.Get("x")
	assert.Equal(t, ObjectID("o1"), h.Object, "failed put leaves the original entry")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryGetMissing(t *testing.T) {
	reg := NewRegistry(nil)
	h, ok := reg.Get("nope")
	assert.Nil(t, h)
	assert.False(t, ok)
}

func TestRegistryBindBeforePut(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Bind("obj", "id1"))
	require.NoError(t, reg.Bind("obj", "id1"), "rebinding the same pair is allowed")
	require.ErrorIs(t, reg.Bind("obj", "id2"), ErrDuplicateIdentifier)

	id, ok := reg.ReverseLookup("obj")
	require.True(t, ok)
	assert.Equal(t, Identifier("id1"), id)
	assert.Zero(t, reg.Len(), "binding does not create a handle")

	reg.Unbind("obj")
	_, ok = reg.ReverseLookup("obj")
	assert.False(t, ok)
}

func TestRegistryConcurrentRemove(t *testing.T) {
	d := newDisposals()
	reg := NewRegistry(d.dispose)
	require.NoError(t, reg.Put("id", &Handle{ID: "id", Object: "obj"}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Remove("id")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, d.count("obj"))
}
