// Package memstore implements the document store contract as an
// in-process hub: a path-addressed tree of JSON-like values with
// ordered asynchronous event dispatch, client sessions, and
// disconnect-triggered writes. It is both the reference backend and the
// test double for every layer above the store interface.
package memstore

import (
	"strings"
	"sync"
	"time"

	"github.com/mesh-learning/tileboard/pkg/store"
)

// Hub is the shared mutable tree. All mutation happens under one lock;
// watcher callbacks run on a single dispatch goroutine in mutation
// order, so no two callbacks ever interleave.
type Hub struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[int]*subscription
	nextID int
	closed bool

	// Unbounded event queue drained by the dispatch goroutine, so
	// enqueueing under the lock can never block against dispatch.
	qmu   sync.Mutex
	qcond *sync.Cond
	qbuf  []func()
	done  chan struct{}

	// now is replaceable in tests.
	now func() int64

	// onWrite, when set, is invoked under the lock after every
	// mutation with the affected root path and its new subtree (nil
	// for deletes). The sqlite backend uses it for write-through.
	onWrite func(path string, value any)
}

type subscription struct {
	hub    *Hub
	id     int
	path   string
	fn     func(any)
	closed bool
}

// NewHub returns an empty hub with its dispatch loop running.
func NewHub() *Hub {
	h := &Hub{
		root: make(map[string]any),
		subs: make(map[int]*subscription),
		now:  func() int64 { return time.Now().UnixMilli() },
		done: make(chan struct{}),
	}
	h.qcond = sync.NewCond(&h.qmu)
	go h.dispatch()
	return h
}

func (h *Hub) dispatch() {
	defer close(h.done)
	for {
		h.qmu.Lock()
		for len(h.qbuf) == 0 {
			if h.isClosed() {
				h.qmu.Unlock()
				return
			}
			h.qcond.Wait()
		}
		fn := h.qbuf[0]
		h.qbuf = h.qbuf[1:]
		h.qmu.Unlock()
		fn()
	}
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Close stops the dispatch loop. Pending events are delivered first.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.qcond.Broadcast()
	<-h.done
}

// SetNow replaces the server clock, for tests.
func (h *Hub) SetNow(now func() int64) {
	h.mu.Lock()
	h.now = now
	h.mu.Unlock()
}

// SetWriteHook installs the persistence write-through hook.
func (h *Hub) SetWriteHook(fn func(path string, value any)) {
	h.mu.Lock()
	h.onWrite = fn
	h.mu.Unlock()
}

// Load places a subtree into the hub without firing the write hook.
// Used by persistent backends while loading their saved state.
func (h *Hub) Load(path string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	setAt(h.root, splitPath(path), value)
}

// Once reads the value at path.
func (h *Hub) Once(path string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, store.ErrClosed
	}
	return deepCopy(valueAt(h.root, splitPath(path))), nil
}

// Set replaces the subtree at path; nil deletes.
func (h *Hub) Set(path string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return store.ErrClosed
	}
	h.setLocked(path, value)
	h.notifyLocked([]string{path})
	return nil
}

// Update merges children into the node at path; keys may be
// slash-separated relative paths, nil values delete.
func (h *Hub) Update(path string, children map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return store.ErrClosed
	}
	changed := make([]string, 0, len(children))
	for key, value := range children {
		child := joinPath(path, key)
		h.setLocked(child, value)
		changed = append(changed, child)
	}
	h.notifyLocked(changed)
	return nil
}

// Delete removes the subtree at path.
func (h *Hub) Delete(path string) error {
	return h.Set(path, nil)
}

// Watch subscribes fn to the subtree at path. The current value is
// delivered first, through the same ordered dispatch as changes.
func (h *Hub) Watch(path string, fn func(any)) (store.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, store.ErrClosed
	}
	sub := &subscription{hub: h, id: h.nextID, path: path, fn: fn}
	h.nextID++
	h.subs[sub.id] = sub
	initial := deepCopy(valueAt(h.root, splitPath(path)))
	h.enqueueLocked(sub, initial)
	return sub, nil
}

// Close implements store.Subscription. Events already queued for this
// subscription are suppressed.
func (s *subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs, s.id)
}

func (h *Hub) setLocked(path string, value any) {
	value = h.resolveTimestamps(deepCopy(value))
	setAt(h.root, splitPath(path), value)
	if h.onWrite != nil {
		h.onWrite(path, deepCopy(valueAt(h.root, splitPath(path))))
	}
}

// notifyLocked queues one callback per subscription whose path
// intersects any changed path. Snapshots are taken now so callbacks see
// the state as of this mutation.
func (h *Hub) notifyLocked(changed []string) {
	for _, sub := range h.subs {
		if !intersectsAny(sub.path, changed) {
			continue
		}
		h.enqueueLocked(sub, deepCopy(valueAt(h.root, splitPath(sub.path))))
	}
}

func (h *Hub) enqueueLocked(sub *subscription, value any) {
	h.qmu.Lock()
	h.qbuf = append(h.qbuf, func() {
		sub.hub.mu.Lock()
		closed := sub.closed
		sub.hub.mu.Unlock()
		if !closed {
			sub.fn(value)
		}
	})
	h.qmu.Unlock()
	h.qcond.Signal()
}

// resolveTimestamps replaces server timestamp sentinels throughout the
// value with the current server time.
func (h *Hub) resolveTimestamps(value any) any {
	if store.IsServerTimestamp(value) {
		return float64(h.now())
	}
	if m, ok := value.(map[string]any); ok {
		for k, v := range m {
			m[k] = h.resolveTimestamps(v)
		}
	}
	return value
}

//
// Path and tree helpers.
//

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	if key == "" {
		return base
	}
	return base + "/" + key
}

func valueAt(root map[string]any, segs []string) any {
	var cur any = root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// setAt writes value at the segment path, creating intermediate maps
// and pruning empty ones after a delete.
func setAt(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		for k := range root {
			delete(root, k)
		}
		if m, ok := value.(map[string]any); ok {
			for k, v := range m {
				root[k] = v
			}
		}
		return
	}
	parents := make([]map[string]any, 0, len(segs))
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		parents = append(parents, cur)
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if value == nil {
				return // nothing to delete
			}
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	parents = append(parents, cur)
	last := segs[len(segs)-1]
	if value == nil {
		delete(cur, last)
	} else {
		cur[last] = value
	}
	// Prune empty maps bottom-up.
	for i := len(parents) - 1; i > 0; i-- {
		if len(parents[i]) == 0 {
			delete(parents[i-1], segs[i-1])
		}
	}
}

// intersectsAny reports whether subPath and any changed path are on the
// same branch (one a segment-prefix of the other).
func intersectsAny(subPath string, changed []string) bool {
	subSegs := splitPath(subPath)
	for _, ch := range changed {
		if onSameBranch(subSegs, splitPath(ch)) {
			return true
		}
	}
	return false
}

func onSameBranch(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
