package content

import "encoding/json"

// Unknown is the placeholder payload for content whose type this build
// does not recognize. It round-trips the original bytes so a later save
// does not destroy data authored by a newer client.
type Unknown struct {
	DeclaredType string
	Raw          json.RawMessage
}

// ContentType implements Content.
func (u *Unknown) ContentType() string { return TypeUnknown }

// MarshalJSON writes back the preserved original payload when present.
func (u *Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) > 0 {
		return u.Raw, nil
	}
	return json.Marshal(map[string]string{"type": u.DeclaredType})
}
