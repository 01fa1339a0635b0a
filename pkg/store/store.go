// Package store defines the narrow contract the synchronization and
// presence layers have on the remote document store: a path-addressed
// tree of JSON-like values with read-once, continuous-subscribe, write,
// merge-update, subtree-delete, and a native run-this-write-on-
// disconnect primitive. Backends live under internal/.
package store

import "errors"

// Store errors.
var (
	ErrClosed      = errors.New("store is closed")
	ErrInvalidPath = errors.New("invalid path")
)

// ServerTimestamp returns the sentinel value replaced server-side with
// the write time in epoch milliseconds, mirroring the remote store's
// native placeholder.
func ServerTimestamp() any {
	return map[string]any{".sv": "timestamp"}
}

// IsServerTimestamp reports whether v is the server timestamp sentinel.
func IsServerTimestamp(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	sv, ok := m[".sv"].(string)
	return ok && sv == "timestamp"
}

// Subscription is a live listener handle. Close detaches it; closing
// more than once is harmless.
type Subscription interface {
	Close()
}

// DisconnectHandle cancels a pending disconnect write.
type DisconnectHandle interface {
	Cancel()
}

// Store is the key-value document store contract. Values are JSON-like
// trees: map[string]any, []any, string, float64, bool, nil. Snapshots
// delivered to watchers are copies; mutating them does not affect the
// store.
type Store interface {
	// Once reads the value at path a single time. A missing path
	// yields nil, not an error.
	Once(path string) (any, error)

	// Watch subscribes to the subtree at path. fn fires once with the
	// current value and again after every change, in change order.
	Watch(path string, fn func(any)) (Subscription, error)

	// Set replaces the subtree at path. A nil value deletes it.
	Set(path string, value any) error

	// Update merges children into the node at path. Keys may be
	// slash-separated relative paths; nil values delete.
	Update(path string, children map[string]any) error

	// Delete removes the subtree at path.
	Delete(path string) error

	// OnDisconnect registers a write performed server-side when this
	// client's session ends uncleanly, within the store's guaranteed
	// window. A nil value registers a delete.
	OnDisconnect(path string, value any) (DisconnectHandle, error)

	// Close releases the client session, firing registered disconnect
	// writes and detaching its subscriptions.
	Close() error
}
