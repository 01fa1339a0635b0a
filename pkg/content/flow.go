package content

// Flow is the flow tool payload. The model is an opaque serialized
// widget state string.
type Flow struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// ContentType implements Content.
func (f *Flow) ContentType() string { return TypeFlow }

// SetModel replaces the serialized widget state.
func (f *Flow) SetModel(model string) { f.Model = model }
