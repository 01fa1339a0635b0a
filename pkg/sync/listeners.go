package sync

import (
	gosync "sync"
)

// Listener key prefixes. One live listener exists per (prefix, key).
const (
	listenerDocument    = "document"
	listenerVisibility  = "visibility"
	listenerLearningLog = "learningLog"
	listenerGroupDoc    = "groupDocument"
)

// registry tracks live listeners by unique key. Each entry's detach
// function runs exactly once, whether the entry is replaced, removed,
// or swept by CloseAll.
type registry struct {
	mu      gosync.Mutex
	entries map[string]*entry
}

type entry struct {
	once   gosync.Once
	detach func()
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func listenerKey(prefix, key string) string {
	return prefix + ":" + key
}

// set installs detach under key, detaching any previous entry first.
func (r *registry) set(key string, detach func()) {
	r.mu.Lock()
	prev := r.entries[key]
	r.entries[key] = &entry{detach: detach}
	r.mu.Unlock()
	if prev != nil {
		prev.close()
	}
}

// remove detaches and forgets the entry under key, if any.
func (r *registry) remove(key string) {
	r.mu.Lock()
	e := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if e != nil {
		e.close()
	}
}

// closeAll detaches every entry.
func (r *registry) closeAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.close()
	}
}

func (e *entry) close() {
	e.once.Do(e.detach)
}
