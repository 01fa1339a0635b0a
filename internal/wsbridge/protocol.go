// Package wsbridge serves a store over a websocket and gives remote
// clients a connection that satisfies the same store contract. Each
// connection is one store session; dropping the connection, cleanly or
// not, closes the session and fires its disconnect writes.
package wsbridge

// Operations carried in request frames.
const (
	opOnce         = "once"
	opSet          = "set"
	opUpdate       = "update"
	opDelete       = "delete"
	opWatch        = "watch"
	opUnwatch      = "unwatch"
	opOnDisconnect = "onDisconnect"
	opCancel       = "cancel"
)

// frame is every message on the wire. Requests carry ID and Op;
// responses echo the ID with Value or Error; watch events carry Event
// and the Sub they belong to.
type frame struct {
	ID    int64          `json:"id,omitempty"`
	Op    string         `json:"op,omitempty"`
	Path  string         `json:"path,omitempty"`
	Value any            `json:"value,omitempty"`
	Sub   int64          `json:"sub,omitempty"`
	Event bool           `json:"event,omitempty"`
	Error string         `json:"error,omitempty"`
	Merge map[string]any `json:"merge,omitempty"`
}
