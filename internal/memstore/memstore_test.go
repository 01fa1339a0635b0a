package memstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-learning/tileboard/pkg/store"
)

func TestSetAndOnce(t *testing.T) {
	h := NewHub()
	defer h.Close()

	require.NoError(t, h.Set("a/b/c", "hello"))

	got, err := h.Once("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = h.Once("a/b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": "hello"}, got)

	got, err = h.Once("missing/path")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeletePrunesEmptyParents(t *testing.T) {
	h := NewHub()
	defer h.Close()

	require.NoError(t, h.Set("a/b/c", 1.0))
	require.NoError(t, h.Delete("a/b/c"))

	got, err := h.Once("a")
	require.NoError(t, err)
	assert.Nil(t, got, "emptied intermediate nodes should vanish")
}

func TestUpdateMergesAndDeletes(t *testing.T) {
	h := NewHub()
	defer h.Close()

	require.NoError(t, h.Set("node", map[string]any{"keep": "x", "drop": "y"}))
	require.NoError(t, h.Update("node", map[string]any{
		"drop":      nil,
		"added/sub": "z",
	}))

	got, err := h.Once("node")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"keep":  "x",
		"added": map[string]any{"sub": "z"},
	}, got)
}

func TestWatchDeliversInitialThenChanges(t *testing.T) {
	h := NewHub()
	defer h.Close()

	require.NoError(t, h.Set("doc", "v1"))

	var mu sync.Mutex
	var seen []any
	sub, err := h.Watch("doc", func(v any) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.Set("doc", "v2"))
	require.NoError(t, h.Set("doc", "v3"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{"v1", "v2", "v3"}, seen, "events arrive in mutation order")
}

func TestWatchFiresForAncestorAndDescendantWrites(t *testing.T) {
	h := NewHub()
	defer h.Close()

	var mu sync.Mutex
	count := 0
	sub, err := h.Watch("a/b", func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, h.Set("a/b/c", 1.0))                       // descendant
	require.NoError(t, h.Set("a", map[string]any{"b": "direct"})) // ancestor
	require.NoError(t, h.Set("a/sibling", 2.0))                   // unrelated

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3
	}, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count, "initial snapshot plus two intersecting writes")
}

func TestSubscriptionCloseSuppressesQueued(t *testing.T) {
	h := NewHub()
	defer h.Close()

	var mu sync.Mutex
	count := 0
	sub, err := h.Watch("doc", func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	sub.Close()
	require.NoError(t, h.Set("doc", "late"))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count, "no events after close, including the initial snapshot")
}

func TestServerTimestampResolution(t *testing.T) {
	h := NewHub()
	defer h.Close()
	h.SetNow(func() int64 { return 1234 })

	require.NoError(t, h.Set("rec", map[string]any{
		"createdAt": store.ServerTimestamp(),
		"name":      "x",
	}))

	got, err := h.Once("rec")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"createdAt": float64(1234), "name": "x"}, got)
}

func TestSnapshotsAreCopies(t *testing.T) {
	h := NewHub()
	defer h.Close()

	require.NoError(t, h.Set("node", map[string]any{"k": "v"}))

	got, err := h.Once("node")
	require.NoError(t, err)
	got.(map[string]any)["k"] = "mutated"

	again, err := h.Once("node")
	require.NoError(t, err)
	assert.Equal(t, "v", again.(map[string]any)["k"])
}

func TestWriteHookAndLoad(t *testing.T) {
	h := NewHub()
	defer h.Close()

	var mu sync.Mutex
	writes := map[string]any{}
	h.SetWriteHook(func(path string, value any) {
		mu.Lock()
		writes[path] = value
		mu.Unlock()
	})

	h.Load("a/b", "loaded")
	require.NoError(t, h.Set("a/c", "written"))

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, writes, "a/b", "Load must not echo into the hook")
	assert.Equal(t, "written", writes["a/c"])
}

func TestHubCloseRejectsFurtherUse(t *testing.T) {
	h := NewHub()
	h.Close()
	h.Close() // idempotent

	require.ErrorIs(t, h.Set("x", 1.0), store.ErrClosed)
	_, err := h.Once("x")
	require.ErrorIs(t, err, store.ErrClosed)
	_, err = h.Watch("x", func(any) {})
	require.ErrorIs(t, err, store.ErrClosed)
}

func TestSessionDisconnectWrites(t *testing.T) {
	h := NewHub()
	defer h.Close()
	h.SetNow(func() int64 { return 99 })

	sess := h.NewSession()
	_, err := sess.OnDisconnect("presence/u1", map[string]any{
		"disconnectedTimestamp": store.ServerTimestamp(),
	})
	require.NoError(t, err)

	cancelled, err := sess.OnDisconnect("presence/u2", "gone")
	require.NoError(t, err)
	cancelled.Cancel()

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close()) // idempotent

	got, err := h.Once("presence/u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"disconnectedTimestamp": float64(99)}, got)

	got, err = h.Once("presence/u2")
	require.NoError(t, err)
	assert.Nil(t, got, "cancelled disconnect write must not fire")
}

func TestSessionCloseDetachesSubscriptions(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sess := h.NewSession()
	var mu sync.Mutex
	count := 0
	_, err := sess.Watch("doc", func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, sess.Close())
	require.NoError(t, h.Set("doc", "after"))

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)

	require.ErrorIs(t, sess.Set("doc", "x"), store.ErrClosed)
	_, err = sess.Watch("doc", func(any) {})
	require.ErrorIs(t, err, store.ErrClosed)
}

func TestTwoSessionsShareTheTree(t *testing.T) {
	h := NewHub()
	defer h.Close()

	a := h.NewSession()
	defer a.Close()
	b := h.NewSession()
	defer b.Close()

	var mu sync.Mutex
	var last any
	_, err := b.Watch("shared", func(v any) {
		mu.Lock()
		last = v
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, a.Set("shared", "from-a"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == "from-a"
	}, time.Second, time.Millisecond)
}
