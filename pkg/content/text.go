package content

import "strings"

// Focus markers embedded by the rich-text editor in serialized values.
// Remote rehydration must never resurrect an active selection.
const (
	focusedMarker   = `"isFocused":true`
	unfocusedMarker = `"isFocused":false`
)

// Text is the text tool payload. The text value is either plain text or
// a serialized rich-text editor document.
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewText returns a text payload with the given initial value.
func NewText(initial string) *Text {
	return &Text{Type: TypeText, Text: initial}
}

// ContentType implements Content.
func (t *Text) ContentType() string { return TypeText }

// SetText replaces the text value.
func (t *Text) SetText(text string) {
	t.Text = text
}

// ClearFocus rewrites any serialized editor focus marker to its
// unfocused form. Loading text with an active selection breaks the
// editor, so hydration deselects before handing the value over.
func (t *Text) ClearFocus() {
	t.Text = strings.ReplaceAll(t.Text, focusedMarker, unfocusedMarker)
}
