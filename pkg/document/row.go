package document

// Row is an ordered horizontal grouping of tiles. Insertion order of
// tile ids is significant. Height, when non-zero, is an explicit
// user-resized height.
type Row struct {
	ID      string   `json:"id"`
	TileIDs []string `json:"tiles"`
	Height  int      `json:"height,omitempty"`
}

func newRow() *Row {
	return &Row{ID: newID()}
}

// IsEmpty reports whether the row holds no tiles.
func (r *Row) IsEmpty() bool { return len(r.TileIDs) == 0 }

// indexOfTile returns the position of tileID in the row, or -1.
func (r *Row) indexOfTile(tileID string) int {
	for i, id := range r.TileIDs {
		if id == tileID {
			return i
		}
	}
	return -1
}

// insertTileAt inserts tileID at pos, clamping pos to the valid range.
// A negative pos appends.
func (r *Row) insertTileAt(tileID string, pos int) {
	if pos < 0 || pos > len(r.TileIDs) {
		pos = len(r.TileIDs)
	}
	r.TileIDs = append(r.TileIDs, "")
	copy(r.TileIDs[pos+1:], r.TileIDs[pos:])
	r.TileIDs[pos] = tileID
}

// removeTile removes tileID from the row if present.
func (r *Row) removeTile(tileID string) {
	if i := r.indexOfTile(tileID); i >= 0 {
		r.TileIDs = append(r.TileIDs[:i], r.TileIDs[i+1:]...)
	}
}
