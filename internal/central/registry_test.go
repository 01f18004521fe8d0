package central

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// target carries a pointer field so the allocator never batches it with other
// tiny objects; weak pointers to such objects would otherwise outlive them.
type target struct {
	name string
	next *target
}

func collect() {
	runtime.GC()
	runtime.GC()
}

func TestRegistryCompactsCollectedEntries(t *testing.T) {
	var r Registry[target]
	keep := make([]*target, 0, 3)

	for i := 0; i < 5; i++ {
		v := &target{name: "x"}
		r.Add(v)
		if i%2 == 0 {
			keep = append(keep, v)
		}
	}
	require.Equal(t, 5, r.Len())

	collect()

	assert.Equal(t, 3, r.Compact(), "MUST drop the two unreferenced entries")
	assert.Equal(t, 3, r.Len())
	runtime.KeepAlive(keep)
}

func TestRegistrySnapshotOrderAndIsolation(t *testing.T) {
	var r Registry[target]
	a, b, c := &target{name: "a"}, &target{name: "b"}, &target{name: "c"}
	r.Add(a)
	r.Add(b)
	r.Add(c)
	r.Add(b)

	snap := r.Snapshot()
	require.Len(t, snap, 3, "MUST ignore duplicate registration")
	assert.Same(t, a, snap[0])
	assert.Same(t, b, snap[1])
	assert.Same(t, c, snap[2])

	r.Remove(b)
	assert.Len(t, snap, 3, "snapshot MUST be unaffected by later removals")
	assert.Equal(t, []*target{a, c}, r.Snapshot())
}

func TestRegistryRemoveUnknownAndNil(t *testing.T) {
	var r Registry[target]
	a := &target{name: "a"}
	r.Add(a)
	r.Add(nil)
	r.Remove(&target{name: "a"})
	r.Remove(nil)
	assert.Equal(t, 1, r.Len(), "MUST remove by identity, not by value")
	runtime.KeepAlive(a)
}

func TestRegistryRemoveCompactsFirst(t *testing.T) {
	var r Registry[target]
	keep := &target{name: "keep"}
	func() {
		r.Add(&target{name: "gone"})
	}()
	r.Add(keep)
	collect()

	r.Remove(keep)
	assert.Equal(t, 0, r.Len(), "MUST compact dead entries when removing")
}
