package content

// Graph is the graph tool payload. The model is an opaque serialized
// widget state string.
type Graph struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// ContentType implements Content.
func (g *Graph) ContentType() string { return TypeGraph }

// SetModel replaces the serialized widget state.
func (g *Graph) SetModel(model string) { g.Model = model }
