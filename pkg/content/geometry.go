package content

import "encoding/json"

// Default board extents for a fresh geometry tile.
const (
	boardAxisMin = -0.5
	boardXMax    = 20
	boardYMax    = 5
)

// DefaultGeometryHeight is the initial layout height of a geometry tile.
const DefaultGeometryHeight = 200

// Geometry is the geometry tool payload: an append-only list of change
// entries, each a serialized GeometryChange, replayed by the renderer to
// reconstruct the board. Linked tables drive point changes through the
// typed mutators below.
type Geometry struct {
	Type    string   `json:"type"`
	Changes []string `json:"changes"`
}

// GeometryChange is one entry in a geometry change list.
type GeometryChange struct {
	Operation  string   `json:"operation"`
	Target     string   `json:"target"`
	TargetIDs  []string `json:"targetIds,omitempty"`
	Parents    [][]any  `json:"parents,omitempty"`
	Properties any      `json:"properties,omitempty"`
}

// NewGeometry returns a geometry payload seeded with a board-creation
// change using the default extents.
func NewGeometry() *Geometry {
	g := &Geometry{Type: TypeGeometry}
	g.append(GeometryChange{
		Operation: "create",
		Target:    "board",
		Properties: map[string]any{
			"axis":        true,
			"boundingBox": []float64{boardAxisMin, boardYMax, boardXMax, boardAxisMin},
		},
	})
	return g
}

// ContentType implements Content.
func (g *Geometry) ContentType() string { return TypeGeometry }

func (g *Geometry) append(change GeometryChange) {
	raw, err := json.Marshal(change)
	if err != nil {
		return
	}
	g.Changes = append(g.Changes, string(raw))
}

// AddPoints appends a point-creation change. ids and positions are
// parallel; positions are [x, y] pairs.
func (g *Geometry) AddPoints(ids []string, positions [][2]float64) {
	if len(ids) == 0 || len(ids) != len(positions) {
		return
	}
	parents := make([][]any, len(ids))
	props := make([]map[string]any, len(ids))
	for i, id := range ids {
		parents[i] = []any{positions[i][0], positions[i][1]}
		props[i] = map[string]any{"id": id}
	}
	g.append(GeometryChange{
		Operation:  "create",
		Target:     "point",
		Parents:    parents,
		Properties: props,
	})
}

// UpdatePoints appends a point-position update change for the given ids.
func (g *Geometry) UpdatePoints(ids []string, positions [][2]float64) {
	if len(ids) == 0 || len(ids) != len(positions) {
		return
	}
	props := make([]map[string]any, len(ids))
	for i := range ids {
		props[i] = map[string]any{"position": []float64{positions[i][0], positions[i][1]}}
	}
	g.append(GeometryChange{
		Operation:  "update",
		Target:     "point",
		TargetIDs:  ids,
		Properties: props,
	})
}

// RemovePoints appends a point-removal change for the given ids.
func (g *Geometry) RemovePoints(ids []string) {
	if len(ids) == 0 {
		return
	}
	g.append(GeometryChange{
		Operation: "delete",
		Target:    "point",
		TargetIDs: ids,
	})
}

// UpdateAxisLabels appends an axis-label update derived from linked
// table column names.
func (g *Geometry) UpdateAxisLabels(xName, yName string) {
	g.append(GeometryChange{
		Operation:  "update",
		Target:     "board",
		Properties: map[string]any{"xName": xName, "yName": yName},
	})
}

// ParseChanges decodes the change list from the given index onward.
// Malformed entries are skipped.
func (g *Geometry) ParseChanges(from int) []GeometryChange {
	if from < 0 {
		from = 0
	}
	var out []GeometryChange
	for _, raw := range g.Changes[min(from, len(g.Changes)):] {
		var ch GeometryChange
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			continue
		}
		out = append(out, ch)
	}
	return out
}
