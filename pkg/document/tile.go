package document

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mesh-learning/tileboard/pkg/content"
)

// Tile is the atomic authoring unit: one tool payload with a unique id
// and an optional user-visible title. A tile is owned by exactly one row.
type Tile struct {
	ID      string
	Title   string
	Content content.Content
}

// tileJSON is the serialized form of a Tile.
type tileJSON struct {
	ID      string          `json:"id"`
	Title   string          `json:"title,omitempty"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON implements json.Marshaler.
func (t *Tile) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(t.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tileJSON{ID: t.ID, Title: t.Title, Content: raw})
}

// UnmarshalJSON implements json.Unmarshaler. Unrecognized content types
// deserialize to a placeholder rather than failing the document load.
func (t *Tile) UnmarshalJSON(data []byte) error {
	var tj tileJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return err
	}
	t.ID = tj.ID
	t.Title = tj.Title
	t.Content = content.Parse(tj.Content)
	return nil
}

// newID generates a UUID v7 id, falling back to v4 if v7 fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
