// Package workspace models the per-section working state around a
// document: comparison mode, the active tool, visibility, and the live
// documents of the user's group members.
package workspace

import (
	"sort"
	"sync"

	"github.com/mesh-learning/tileboard/pkg/document"
)

// Comparison modes.
const (
	ModeOneUp  = "1-up"
	ModeFourUp = "4-up"
)

// ToolSelect is the default tool; the others are the tile kinds.
const ToolSelect = "select"

// Section is the workspace for one curriculum section.
type Section struct {
	SectionID string

	mu        sync.Mutex
	mode      string
	tool      string
	groupDocs map[string]*document.Document
}

// NewSection returns a section workspace in 1-up mode with the select
// tool active.
func NewSection(sectionID string) *Section {
	return &Section{
		SectionID: sectionID,
		mode:      ModeOneUp,
		tool:      ToolSelect,
		groupDocs: make(map[string]*document.Document),
	}
}

// Mode returns the comparison mode.
func (s *Section) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ToggleMode switches between 1-up and 4-up.
func (s *Section) ToggleMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeOneUp {
		s.mode = ModeFourUp
	} else {
		s.mode = ModeOneUp
	}
}

// Tool returns the active tool.
func (s *Section) Tool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// SelectTool activates a tool.
func (s *Section) SelectTool(tool string) {
	s.mu.Lock()
	s.tool = tool
	s.mu.Unlock()
}

// SetGroupDocument installs (or, with nil, clears) a group member's
// shared document. This is the sink the sync layer's group watch feeds.
func (s *Section) SetGroupDocument(uid string, doc *document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc == nil {
		delete(s.groupDocs, uid)
		return
	}
	s.groupDocs[uid] = doc
}

// GroupDocument returns a member's shared document, nil when private.
func (s *Section) GroupDocument(uid string) *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupDocs[uid]
}

// GroupUserIDs returns the uids with a visible shared document, sorted.
func (s *Section) GroupUserIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uids := make([]string, 0, len(s.groupDocs))
	for uid := range s.groupDocs {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// LearningLog is the workspace entry for one learning log document.
type LearningLog struct {
	Key       string
	Title     string
	CreatedAt int64
}

// Workspaces is the collection of section and learning log workspaces.
type Workspaces struct {
	mu       sync.Mutex
	sections map[string]*Section
	logs     map[string]*LearningLog
}

// NewWorkspaces returns an empty collection.
func NewWorkspaces() *Workspaces {
	return &Workspaces{
		sections: make(map[string]*Section),
		logs:     make(map[string]*LearningLog),
	}
}

// Section returns the workspace for sectionID, creating it on first
// use.
func (w *Workspaces) Section(sectionID string) *Section {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.sections[sectionID]
	if !ok {
		s = NewSection(sectionID)
		w.sections[sectionID] = s
	}
	return s
}

// SectionIDs returns the known section ids, sorted.
func (w *Workspaces) SectionIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.sections))
	for id := range w.sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddLearningLog registers a learning log workspace.
func (w *Workspaces) AddLearningLog(key, title string, createdAt int64) *LearningLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	l := &LearningLog{Key: key, Title: title, CreatedAt: createdAt}
	w.logs[key] = l
	return l
}

// LearningLog returns the entry for key, nil when unknown.
func (w *Workspaces) LearningLog(key string) *LearningLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.logs[key]
}

// LearningLogs returns the entries ordered by creation time, oldest
// first, ties broken by key.
func (w *Workspaces) LearningLogs() []*LearningLog {
	w.mu.Lock()
	defer w.mu.Unlock()
	logs := make([]*LearningLog, 0, len(w.logs))
	for _, l := range w.logs {
		logs = append(logs, l)
	}
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].CreatedAt != logs[j].CreatedAt {
			return logs[i].CreatedAt < logs[j].CreatedAt
		}
		return logs[i].Key < logs[j].Key
	})
	return logs
}
