package document

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTileNotFound is returned when a drag payload is requested for an
// unknown tile id.
var ErrTileNotFound = errors.New("tile not found")

// DragPayload is the in-process drag-and-drop payload for a tile move or
// copy: a tile snapshot with its id stripped, tagged with the source
// document key and originating row height so a drop target can tell a
// move within the same document from a copy from elsewhere.
type DragPayload struct {
	SourceDocumentKey string          `json:"sourceDocKey"`
	SourceTileID      string          `json:"sourceTileId"`
	Tile              json.RawMessage `json:"tile"`
	RowHeight         int             `json:"rowHeight,omitempty"`
}

// NewDragPayload serializes the given tile of doc into a drag payload.
func NewDragPayload(doc *Document, tileID string) (*DragPayload, error) {
	c := doc.Content()
	tile, ok := c.Tile(tileID)
	if !ok {
		return nil, fmt.Errorf("drag payload: %w", ErrTileNotFound)
	}
	rowHeight := 0
	if rowID, ok := c.FindRowContainingTile(tileID); ok {
		if row, ok := c.Row(rowID); ok {
			rowHeight = row.Height
		}
	}
	stripped := *tile
	stripped.ID = ""
	raw, err := json.Marshal(&stripped)
	if err != nil {
		return nil, fmt.Errorf("drag payload: %w", err)
	}
	return &DragPayload{
		SourceDocumentKey: doc.Key,
		SourceTileID:      tileID,
		Tile:              raw,
		RowHeight:         rowHeight,
	}, nil
}

// IsLocalMove reports whether the payload originated in the given
// document, i.e. the drop should move the existing tile rather than
// copy the snapshot.
func (p *DragPayload) IsLocalMove(doc *Document) bool {
	return p.SourceDocumentKey == doc.Key
}

// Drop applies the payload to doc at the given row index: a local move
// rewraps the source tile in a new row; a foreign payload deep-clones
// the snapshot with a fresh id. Returns the id of the dropped tile.
func (p *DragPayload) Drop(doc *Document, insertAtRowIndex int) (string, error) {
	if p.IsLocalMove(doc) {
		doc.Update(func(c *Content) {
			c.MoveTileToNewRow(p.SourceTileID, insertAtRowIndex)
		})
		return p.SourceTileID, nil
	}
	var tileID string
	var err error
	doc.Update(func(c *Content) {
		tileID, _, err = c.CopyTileIntoRow(p.Tile, insertAtRowIndex, p.RowHeight)
	})
	if err != nil {
		return "", err
	}
	return tileID, nil
}
