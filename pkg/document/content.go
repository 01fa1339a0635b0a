package document

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mesh-learning/tileboard/pkg/content"
)

// Content is the tile/row graph owned by a Document: a tile map, a row
// map, and the authoritative row-order sequence. The maps are never
// mutated from outside; every operation below leaves the structure
// consistent before it returns.
type Content struct {
	tiles    map[string]*Tile
	rows     map[string]*Row
	rowOrder []string
}

// NewContent returns an empty document content.
func NewContent() *Content {
	return &Content{
		tiles: make(map[string]*Tile),
		rows:  make(map[string]*Row),
	}
}

// IsEmpty reports whether the content holds no tiles.
func (c *Content) IsEmpty() bool { return len(c.tiles) == 0 }

// TileCount returns the number of tiles.
func (c *Content) TileCount() int { return len(c.tiles) }

// RowCount returns the number of rows.
func (c *Content) RowCount() int { return len(c.rowOrder) }

// RowOrder returns a copy of the row-order sequence.
func (c *Content) RowOrder() []string {
	return append([]string(nil), c.rowOrder...)
}

// Tile returns the tile with the given id.
func (c *Content) Tile(tileID string) (*Tile, bool) {
	t, ok := c.tiles[tileID]
	return t, ok
}

// Row returns the row with the given id.
func (c *Content) Row(rowID string) (*Row, bool) {
	r, ok := c.rows[rowID]
	return r, ok
}

// RowAtIndex returns the row at the given position in row order.
func (c *Content) RowAtIndex(index int) (*Row, bool) {
	if index < 0 || index >= len(c.rowOrder) {
		return nil, false
	}
	return c.rows[c.rowOrder[index]], true
}

// FindRowContainingTile returns the id of the row owning tileID.
func (c *Content) FindRowContainingTile(tileID string) (string, bool) {
	for _, rowID := range c.rowOrder {
		if c.rows[rowID].indexOfTile(tileID) >= 0 {
			return rowID, true
		}
	}
	return "", false
}

// NumTilesInRow returns the tile count of the given row, 0 if unknown.
func (c *Content) NumTilesInRow(rowID string) int {
	row, ok := c.rows[rowID]
	if !ok {
		return 0
	}
	return len(row.TileIDs)
}

// AddTile creates a tile with default content for the given tool kind.
// When toNewRow is true the tile gets its own row appended at the end;
// otherwise it is appended to the last existing row (or a first row is
// created). Returns the new tile id and its row id.
func (c *Content) AddTile(kind string, toNewRow bool) (tileID, rowID string, err error) {
	payload, err := content.Default(kind)
	if err != nil {
		return "", "", fmt.Errorf("add tile: %w", err)
	}
	height := 0
	if kind == content.KindGeometry {
		height = content.DefaultGeometryHeight
	}
	tileID, rowID = c.addTileContent(payload, toNewRow, height)
	return tileID, rowID, nil
}

// AddTileContent inserts a tile carrying the given payload, following
// the same row placement rules as AddTile.
func (c *Content) AddTileContent(payload content.Content, toNewRow bool) (tileID, rowID string) {
	return c.addTileContent(payload, toNewRow, 0)
}

func (c *Content) addTileContent(payload content.Content, toNewRow bool, height int) (tileID, rowID string) {
	tile := &Tile{ID: newID(), Content: payload}
	c.tiles[tile.ID] = tile

	var row *Row
	if !toNewRow && len(c.rowOrder) > 0 {
		row = c.rows[c.rowOrder[len(c.rowOrder)-1]]
	} else {
		row = newRow()
		row.Height = height
		c.rows[row.ID] = row
		c.rowOrder = append(c.rowOrder, row.ID)
	}
	row.insertTileAt(tile.ID, -1)
	return tile.ID, row.ID
}

// DeleteTile removes the tile from its row and from the tile map,
// removing the row as well if it becomes empty. Unknown ids are a no-op.
func (c *Content) DeleteTile(tileID string) {
	if _, ok := c.tiles[tileID]; !ok {
		return
	}
	c.detachTile(tileID)
	delete(c.tiles, tileID)
}

// detachTile removes tileID from its owning row, dropping the row from
// the order if it empties. The tile stays in the tile map.
func (c *Content) detachTile(tileID string) {
	rowID, ok := c.FindRowContainingTile(tileID)
	if !ok {
		return
	}
	row := c.rows[rowID]
	row.removeTile(tileID)
	if row.IsEmpty() {
		c.removeRow(rowID)
	}
}

func (c *Content) removeRow(rowID string) {
	delete(c.rows, rowID)
	for i, id := range c.rowOrder {
		if id == rowID {
			c.rowOrder = append(c.rowOrder[:i], c.rowOrder[i+1:]...)
			break
		}
	}
}

// MoveTileToRow detaches the tile from its current row and inserts it
// into the row at targetRowIndex at the given position. A negative
// position appends; an out-of-range index is clamped. These arise from
// benign UI races (a row removed between drag start and drop), so they
// degrade instead of failing.
func (c *Content) MoveTileToRow(tileID string, targetRowIndex, insertPos int) {
	if _, ok := c.tiles[tileID]; !ok || len(c.rowOrder) == 0 {
		return
	}
	targetRowIndex = clamp(targetRowIndex, 0, len(c.rowOrder)-1)
	target := c.rows[c.rowOrder[targetRowIndex]]

	srcID, _ := c.FindRowContainingTile(tileID)
	if srcID == target.ID {
		// in-row reorder
		target.removeTile(tileID)
		target.insertTileAt(tileID, insertPos)
		return
	}
	c.detachTile(tileID)
	target.insertTileAt(tileID, insertPos)
}

// MoveTileToNewRow detaches the tile and wraps it in a brand-new row
// inserted at the given row index (clamped).
func (c *Content) MoveTileToNewRow(tileID string, insertAtRowIndex int) {
	if _, ok := c.tiles[tileID]; !ok {
		return
	}
	c.detachTile(tileID)
	row := newRow()
	row.insertTileAt(tileID, -1)
	c.rows[row.ID] = row
	c.insertRowAt(row.ID, insertAtRowIndex)
}

func (c *Content) insertRowAt(rowID string, index int) {
	index = clamp(index, 0, len(c.rowOrder))
	c.rowOrder = append(c.rowOrder, "")
	copy(c.rowOrder[index+1:], c.rowOrder[index:])
	c.rowOrder[index] = rowID
}

// MoveRowToIndex reorders the row-order sequence. Indices are clamped;
// equal indices are a no-op.
func (c *Content) MoveRowToIndex(fromIndex, toIndex int) {
	if len(c.rowOrder) == 0 {
		return
	}
	fromIndex = clamp(fromIndex, 0, len(c.rowOrder)-1)
	toIndex = clamp(toIndex, 0, len(c.rowOrder)-1)
	if fromIndex == toIndex {
		return
	}
	rowID := c.rowOrder[fromIndex]
	c.rowOrder = append(c.rowOrder[:fromIndex], c.rowOrder[fromIndex+1:]...)
	c.rowOrder = append(c.rowOrder, "")
	copy(c.rowOrder[toIndex+1:], c.rowOrder[toIndex:])
	c.rowOrder[toIndex] = rowID
}

// SetRowHeight records an explicit height for the given row.
func (c *Content) SetRowHeight(rowID string, height int) {
	if row, ok := c.rows[rowID]; ok {
		row.Height = height
	}
}

// CopyTileIntoRow deep-clones a serialized tile snapshot into a new row
// at the given index, assigning a fresh tile id. Used for cross-document
// and cross-row duplication via drag and drop. rowHeight of 0 leaves the
// row height unset.
func (c *Content) CopyTileIntoRow(serialized []byte, insertAtRowIndex, rowHeight int) (tileID, rowID string, err error) {
	var tile Tile
	if err := json.Unmarshal(serialized, &tile); err != nil {
		return "", "", fmt.Errorf("copy tile: %w", err)
	}
	// Fresh identity, stripped of source-specific id.
	tile.ID = newID()
	c.tiles[tile.ID] = &tile

	row := newRow()
	row.Height = rowHeight
	row.insertTileAt(tile.ID, -1)
	c.rows[row.ID] = row
	c.insertRowAt(row.ID, insertAtRowIndex)
	return tile.ID, row.ID, nil
}

// ClearTextFocus rewrites serialized editor focus markers in every text
// tile. Called on rehydration so a remote snapshot never resurrects a
// UI-only selection state.
func (c *Content) ClearTextFocus() {
	for _, tile := range c.tiles {
		if text, ok := tile.Content.(*content.Text); ok {
			text.ClearFocus()
		}
	}
}

// Validate checks the structural invariants: row-map keys equal the
// row-order entries, and tile-map keys equal the set of tile ids
// referenced by rows, each exactly once.
func (c *Content) Validate() error {
	if len(c.rowOrder) != len(c.rows) {
		return fmt.Errorf("row order has %d entries, row map has %d", len(c.rowOrder), len(c.rows))
	}
	seen := make(map[string]bool, len(c.tiles))
	for _, rowID := range c.rowOrder {
		row, ok := c.rows[rowID]
		if !ok {
			return fmt.Errorf("row order references unknown row %s", rowID)
		}
		for _, tileID := range row.TileIDs {
			if seen[tileID] {
				return fmt.Errorf("tile %s referenced by more than one row", tileID)
			}
			seen[tileID] = true
			if _, ok := c.tiles[tileID]; !ok {
				return fmt.Errorf("row %s references unknown tile %s", rowID, tileID)
			}
		}
	}
	if len(seen) != len(c.tiles) {
		return fmt.Errorf("%d tiles referenced by rows, %d in tile map", len(seen), len(c.tiles))
	}
	return nil
}

// contentJSON is the storage form of Content.
type contentJSON struct {
	TileMap  map[string]*Tile `json:"tileMap"`
	RowMap   map[string]*Row  `json:"rowMap"`
	RowOrder []string         `json:"rowOrder"`
}

// MarshalJSON implements json.Marshaler.
func (c *Content) MarshalJSON() ([]byte, error) {
	return json.Marshal(contentJSON{
		TileMap:  c.tiles,
		RowMap:   c.rows,
		RowOrder: append([]string{}, c.rowOrder...),
	})
}

// UnmarshalJSON implements json.Unmarshaler. After decoding, the
// structure is normalized so the invariants hold even for snapshots
// written by buggy or newer clients: dangling references are dropped and
// orphaned tiles get their own rows appended in id order.
func (c *Content) UnmarshalJSON(data []byte) error {
	var cj contentJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	c.tiles = cj.TileMap
	c.rows = cj.RowMap
	c.rowOrder = cj.RowOrder
	if c.tiles == nil {
		c.tiles = make(map[string]*Tile)
	}
	if c.rows == nil {
		c.rows = make(map[string]*Row)
	}
	c.normalize()
	return nil
}

// normalize repairs a freshly decoded structure to satisfy Validate.
func (c *Content) normalize() {
	// Drop order entries without a row, then append rows missing from
	// the order.
	order := c.rowOrder[:0]
	inOrder := make(map[string]bool)
	for _, rowID := range c.rowOrder {
		if _, ok := c.rows[rowID]; ok && !inOrder[rowID] {
			order = append(order, rowID)
			inOrder[rowID] = true
		}
	}
	missing := make([]string, 0)
	for rowID := range c.rows {
		if !inOrder[rowID] {
			missing = append(missing, rowID)
		}
	}
	sort.Strings(missing)
	c.rowOrder = append(order, missing...)

	// Drop tile references without a tile, keeping first ownership.
	owned := make(map[string]bool)
	for _, rowID := range c.rowOrder {
		row := c.rows[rowID]
		tiles := row.TileIDs[:0]
		for _, tileID := range row.TileIDs {
			if _, ok := c.tiles[tileID]; ok && !owned[tileID] {
				tiles = append(tiles, tileID)
				owned[tileID] = true
			}
		}
		row.TileIDs = tiles
	}

	// Remove rows emptied by the cleanup.
	for _, rowID := range c.RowOrder() {
		if c.rows[rowID].IsEmpty() {
			c.removeRow(rowID)
		}
	}

	// Orphaned tiles each get their own row appended, in id order.
	orphans := make([]string, 0)
	for tileID := range c.tiles {
		if !owned[tileID] {
			orphans = append(orphans, tileID)
		}
	}
	sort.Strings(orphans)
	for _, tileID := range orphans {
		row := newRow()
		row.insertTileAt(tileID, -1)
		c.rows[row.ID] = row
		c.rowOrder = append(c.rowOrder, row.ID)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
