// Package content defines the polymorphic tile content payloads: one
// variant per authoring tool, each carrying a stable "type" discriminator
// used for serialization and dispatch. Adding a tool type only touches
// this package; the row/document layer treats content opaquely.
package content

import (
	"encoding/json"
	"errors"
)

// Content type discriminators. These are persisted inside serialized
// documents and must remain stable.
const (
	TypeText     = "Text"
	TypeGeometry = "Geometry"
	TypeTable    = "Table"
	TypeImage    = "Image"
	TypeGraph    = "Graph"
	TypeFlow     = "Flow"
	TypeUnknown  = "Unknown"
)

// Tool kinds as used by add-tile operations. These are the lowercase
// tool names the toolbar and CLI use.
const (
	KindText     = "text"
	KindGeometry = "geometry"
	KindTable    = "table"
	KindImage    = "image"
	KindGraph    = "graph"
	KindFlow     = "flow"
)

// ErrUnknownKind is returned when a default payload is requested for an
// unrecognized tool kind.
var ErrUnknownKind = errors.New("unknown tool kind")

// Content is the common contract of every tile payload. Implementations
// are plain serializable structs whose zero-ish defaults come from
// Default; tool-specific mutators live on the concrete types.
type Content interface {
	// ContentType returns the type discriminator string.
	ContentType() string
}

// envelope is the minimal shape needed to dispatch on "type".
type envelope struct {
	Type string `json:"type"`
}

// Parse deserializes a content payload, dispatching on the embedded
// type discriminator. Unrecognized types and malformed payloads yield
// an *Unknown placeholder carrying the original bytes so that loading a
// document authored by a newer client never fails and never loses data.
func Parse(raw json.RawMessage) Content {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Unknown{DeclaredType: TypeUnknown, Raw: append(json.RawMessage(nil), raw...)}
	}

	var c Content
	switch env.Type {
	case TypeText:
		c = &Text{}
	case TypeGeometry:
		c = &Geometry{}
	case TypeTable:
		c = &Table{}
	case TypeImage:
		c = &Image{}
	case TypeGraph:
		c = &Graph{}
	case TypeFlow:
		c = &Flow{}
	default:
		return &Unknown{DeclaredType: env.Type, Raw: append(json.RawMessage(nil), raw...)}
	}

	if err := json.Unmarshal(raw, c); err != nil {
		return &Unknown{DeclaredType: env.Type, Raw: append(json.RawMessage(nil), raw...)}
	}
	return c
}

// Default returns a fresh payload with tool defaults for the given kind.
// Returns ErrUnknownKind for unrecognized kinds.
func Default(kind string) (Content, error) {
	switch kind {
	case KindText:
		return NewText(""), nil
	case KindGeometry:
		return NewGeometry(), nil
	case KindTable:
		return NewTable(), nil
	case KindImage:
		return NewImage(""), nil
	case KindGraph:
		return &Graph{Type: TypeGraph}, nil
	case KindFlow:
		return &Flow{Type: TypeFlow}, nil
	default:
		return nil, ErrUnknownKind
	}
}

// Clone deep-copies a payload by round-tripping it through its
// serialized form.
func Clone(c Content) Content {
	raw, err := json.Marshal(c)
	if err != nil {
		return &Unknown{DeclaredType: c.ContentType()}
	}
	return Parse(raw)
}
