package store

import (
	"encoding/json"
	"fmt"
)

// RecordVersion tags every persisted record.
const RecordVersion = "1.0"

// DocumentSelf identifies a document record.
type DocumentSelf struct {
	UID         string `json:"uid"`
	DocumentKey string `json:"documentKey"`
}

// DocumentRecord is the persisted document content record. Content is
// the serialized document content JSON string; the metadata record for
// the same key is kept separately.
type DocumentRecord struct {
	Version string       `json:"version"`
	Self    DocumentSelf `json:"self"`
	Content string       `json:"content,omitempty"`
	Type    string       `json:"type"`
}

// DocumentMetadata is the persisted metadata record, kept under a
// distinct path from the content record for the same document key.
type DocumentMetadata struct {
	Version   string       `json:"version"`
	Self      DocumentSelf `json:"self"`
	CreatedAt any          `json:"createdAt"`
	Type      string       `json:"type"`

	// Section documents.
	ClassHash  string `json:"classHash,omitempty"`
	OfferingID string `json:"offeringId,omitempty"`

	// Published documents.
	GroupID        string   `json:"groupId,omitempty"`
	OnlineUserIDs  []string `json:"onlineUserIds,omitempty"`
	OfflineUserIDs []string `json:"offlineUserIds,omitempty"`
}

// CreatedAtMillis returns the resolved creation timestamp, 0 when the
// server sentinel has not resolved yet.
func (m *DocumentMetadata) CreatedAtMillis() int64 {
	switch v := m.CreatedAt.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// SectionDocumentSelf identifies a section document pointer record.
type SectionDocumentSelf struct {
	ClassHash  string `json:"classHash"`
	OfferingID string `json:"offeringId"`
	UID        string `json:"uid"`
	SectionID  string `json:"sectionId"`
}

// SectionDocumentRecord points a curriculum section at a user document
// and carries the visibility flag group members gate on.
type SectionDocumentRecord struct {
	Version     string              `json:"version"`
	Self        SectionDocumentSelf `json:"self"`
	Visibility  string              `json:"visibility"`
	DocumentKey string              `json:"documentKey"`
}

// LearningLogRecord names a learning log document.
type LearningLogRecord struct {
	Version string       `json:"version"`
	Self    DocumentSelf `json:"self"`
	Title   string       `json:"title"`
}

// GroupSelf identifies a group record.
type GroupSelf struct {
	ClassHash  string `json:"classHash"`
	OfferingID string `json:"offeringId"`
	GroupID    string `json:"groupId"`
}

// GroupUserSelf identifies a group membership record.
type GroupUserSelf struct {
	ClassHash  string `json:"classHash"`
	OfferingID string `json:"offeringId"`
	GroupID    string `json:"groupId"`
	UID        string `json:"uid"`
}

// GroupUserRecord is one user's membership in a group. Timestamps are
// written with the server sentinel and read back as epoch millis.
type GroupUserRecord struct {
	Version               string        `json:"version"`
	Self                  GroupUserSelf `json:"self"`
	ConnectedTimestamp    any           `json:"connectedTimestamp"`
	DisconnectedTimestamp any           `json:"disconnectedTimestamp,omitempty"`
}

// ConnectedMillis returns the resolved connection timestamp.
func (g *GroupUserRecord) ConnectedMillis() int64 {
	if v, ok := g.ConnectedTimestamp.(float64); ok {
		return int64(v)
	}
	return 0
}

// DisconnectedMillis returns the resolved disconnection timestamp, 0
// while connected.
func (g *GroupUserRecord) DisconnectedMillis() int64 {
	if v, ok := g.DisconnectedTimestamp.(float64); ok {
		return int64(v)
	}
	return 0
}

// Connected reports whether the user counts as connected: connected at
// least once and not disconnected after that.
func (g *GroupUserRecord) Connected() bool {
	c, d := g.ConnectedMillis(), g.DisconnectedMillis()
	return c > 0 && (d == 0 || d < c)
}

// PublicationSelf identifies a published document.
type PublicationSelf struct {
	ClassHash   string `json:"classHash"`
	OfferingID  string `json:"offeringId"`
	UID         string `json:"uid"`
	DocumentKey string `json:"documentKey"`
}

// PublicationRecord is an immutable snapshot of a document published
// into the offering's publications list.
type PublicationRecord struct {
	Version         string          `json:"version"`
	Self            PublicationSelf `json:"self"`
	Content         string          `json:"content"`
	CreatedAt       any             `json:"createdAt"`
	GroupID         string          `json:"groupId,omitempty"`
	UserConnections map[string]bool `json:"groupUserConnections,omitempty"`
}

// GroupRecord is one persisted group.
type GroupRecord struct {
	Version string                     `json:"version"`
	Self    GroupSelf                  `json:"self"`
	Users   map[string]GroupUserRecord `json:"users,omitempty"`
}

// Encode converts a record struct to the store's JSON-like tree form.
func Encode(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return tree, nil
}

// Decode converts a store tree value back into a record struct. It is
// the single parse point for remote payloads: a malformed tree returns
// an error the listener path logs and ignores.
func Decode(tree any, v any) error {
	if tree == nil {
		return fmt.Errorf("decode record: empty value")
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
