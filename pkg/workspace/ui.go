package workspace

import "sync"

// UI is the selection context shared across the workspace: which tile
// is selected and how destructive actions get confirmed. Without a
// confirm hook installed, Confirm answers yes.
type UI struct {
	mu             sync.Mutex
	selectedTileID string
	confirm        func(message string) bool
}

// NewUI returns an empty selection context.
func NewUI() *UI {
	return &UI{}
}

// SelectTile marks tileID as selected.
func (u *UI) SelectTile(tileID string) {
	u.mu.Lock()
	u.selectedTileID = tileID
	u.mu.Unlock()
}

// SelectedTileID returns the selected tile id, empty when none.
func (u *UI) SelectedTileID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.selectedTileID
}

// ClearSelection deselects.
func (u *UI) ClearSelection() {
	u.SelectTile("")
}

// SetConfirm installs the confirmation hook.
func (u *UI) SetConfirm(fn func(message string) bool) {
	u.mu.Lock()
	u.confirm = fn
	u.mu.Unlock()
}

// Confirm asks the hook about a destructive action.
func (u *UI) Confirm(message string) bool {
	u.mu.Lock()
	fn := u.confirm
	u.mu.Unlock()
	if fn == nil {
		return true
	}
	return fn(message)
}
