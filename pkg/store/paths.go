package store

import (
	"fmt"
	"strings"
)

// App modes scoping the store root. Dev and test roots are further
// scoped by a per-run uid so parallel runs never collide.
const (
	ModeAuthed = "authed"
	ModeDev    = "dev"
	ModeTest   = "test"
	ModeDemo   = "demo"
	ModeQA     = "qa"
)

// Paths computes the store locations for one user's view of the world.
// All returned paths are relative to Root.
type Paths struct {
	Mode string
	// ScopeUID isolates dev/test roots per run.
	ScopeUID string
	User     *User
}

// NewPaths returns a path computer for the given mode and user.
func NewPaths(mode string, scopeUID string, user *User) *Paths {
	return &Paths{Mode: mode, ScopeUID: scopeUID, User: user}
}

// Root returns the root folder all other paths live under, in the form
// /{mode}/[{scopeUid}/]portals/{escapedPortal}.
func (p *Paths) Root() string {
	parts := []string{p.Mode}
	if p.Mode == ModeDev || p.Mode == ModeTest {
		if p.ScopeUID != "" {
			parts = append(parts, p.ScopeUID)
		} else {
			parts = append(parts, "no-user-id")
		}
	}
	parts = append(parts, "portals", EscapeKey(p.User.Portal))
	return strings.Join(parts, "/")
}

// FullPath prefixes a relative path with the root folder.
func (p *Paths) FullPath(path string) string {
	if path == "" {
		return p.Root()
	}
	return p.Root() + "/" + path
}

// UserPath returns users/{uid}. An empty userID means the paths' own
// user, as do the userID parameters below.
func (p *Paths) UserPath(userID string) string {
	return "users/" + p.uid(userID)
}

// UserDocumentPath returns the document content record path; an empty
// documentKey addresses the whole collection.
func (p *Paths) UserDocumentPath(userID, documentKey string) string {
	return p.child(p.UserPath(userID)+"/documents", documentKey)
}

// UserDocumentMetadataPath returns the document metadata record path.
func (p *Paths) UserDocumentMetadataPath(userID, documentKey string) string {
	return p.child(p.UserPath(userID)+"/documentMetadata", documentKey)
}

// LearningLogPath returns the learning log record path.
func (p *Paths) LearningLogPath(userID, documentKey string) string {
	return p.child(p.UserPath(userID)+"/learningLogs", documentKey)
}

// LatestGroupIDPath returns the path remembering the last joined group.
func (p *Paths) LatestGroupIDPath() string {
	return p.UserPath("") + "/latestGroupId"
}

// ClassPath returns classes/{classHash}.
func (p *Paths) ClassPath() string {
	return "classes/" + p.User.ClassHash
}

// OfferingPath returns the curriculum offering under the class.
func (p *Paths) OfferingPath() string {
	return fmt.Sprintf("%s/offerings/%s", p.ClassPath(), p.User.OfferingID)
}

// OfferingUserPath returns the per-user node under the offering.
func (p *Paths) OfferingUserPath(userID string) string {
	return p.OfferingPath() + "/users/" + p.uid(userID)
}

// SectionDocumentPath returns the per-section document pointer record;
// an empty sectionID addresses the whole collection.
func (p *Paths) SectionDocumentPath(userID, sectionID string) string {
	return p.child(p.OfferingUserPath(userID)+"/sectionDocuments", sectionID)
}

// GroupsPath returns the offering's groups collection.
func (p *Paths) GroupsPath() string {
	return p.OfferingPath() + "/groups"
}

// GroupPath returns one group record.
func (p *Paths) GroupPath(groupID string) string {
	return p.GroupsPath() + "/" + groupID
}

// GroupUserPath returns one user's membership record in a group.
func (p *Paths) GroupUserPath(groupID, userID string) string {
	return p.GroupPath(groupID) + "/users/" + p.uid(userID)
}

// PublicationsPath returns the offering's published documents list.
func (p *Paths) PublicationsPath() string {
	return p.OfferingPath() + "/publications"
}

func (p *Paths) uid(userID string) string {
	if userID == "" {
		return p.User.ID
	}
	return userID
}

func (p *Paths) child(base, key string) string {
	if key == "" {
		return base
	}
	return base + "/" + key
}
