package store

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	pushMu      sync.Mutex
	pushEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewPushKey generates a unique, lexicographically time-ordered key for
// appending children to a list path, the way document keys are minted.
func NewPushKey() string {
	pushMu.Lock()
	defer pushMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), pushEntropy).String()
}

// EscapeKey rewrites characters that are not allowed in path segments.
func EscapeKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '$', '[', ']', '#', '/':
			return '_'
		}
		return r
	}, s)
}
