package table

import (
	"encoding/json"
	"errors"

	"github.com/mesh-learning/tileboard/pkg/content"
)

// Change operations.
const (
	OpCreateAttribute      = "create-attribute"
	OpCreateCases          = "create-cases"
	OpUpdateCases          = "update-cases"
	OpRemoveCases          = "remove-cases"
	OpSetAttributeName     = "set-attribute-name"
	OpSetAttributeEquation = "set-attribute-equation"
)

// Engine errors.
var (
	// ErrUnlinkableValue rejects a whole batch containing a
	// non-numeric value destined for a linked dataset. The caller
	// surfaces it as the invalid-paste signal.
	ErrUnlinkableValue = errors.New("linked data must be numeric")

	// ErrAttributeNotFound is returned for operations naming an
	// unknown attribute id.
	ErrAttributeNotFound = errors.New("attribute not found")
)

// CaseSnapshot carries the values of one case inside a change entry.
type CaseSnapshot struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Change is one entry of the table change log. It carries enough
// information to be replayed deterministically against an empty
// dataset.
type Change struct {
	Op          string         `json:"op"`
	AttributeID string         `json:"attrId,omitempty"`
	Name        string         `json:"name,omitempty"`
	Equation    string         `json:"equation,omitempty"`
	Cases       []CaseSnapshot `json:"cases,omitempty"`
	CaseIDs     []string       `json:"caseIds,omitempty"`
	BeforeID    string         `json:"beforeId,omitempty"`
}

// Apply replays the change against the dataset. Unknown ids degrade to
// no-ops so a full-log replay and an incremental application produce
// the same result even around concurrent removals.
func (ch *Change) Apply(ds *DataSet) {
	switch ch.Op {
	case OpCreateAttribute:
		if _, ok := ds.Attribute(ch.AttributeID); ok {
			return
		}
		ds.Attributes = append(ds.Attributes, &Attribute{ID: ch.AttributeID, Name: ch.Name})
	case OpCreateCases:
		at := len(ds.Cases)
		if ch.BeforeID != "" {
			if i := ds.caseIndex(ch.BeforeID); i >= 0 {
				at = i
			}
		}
		created := make([]*Case, 0, len(ch.Cases))
		for _, snap := range ch.Cases {
			if _, ok := ds.Case(snap.ID); ok {
				continue
			}
			created = append(created, &Case{ID: snap.ID, Values: copyValues(snap.Values)})
		}
		ds.Cases = append(ds.Cases[:at], append(created, ds.Cases[at:]...)...)
	case OpUpdateCases:
		for _, snap := range ch.Cases {
			if c, ok := ds.Case(snap.ID); ok {
				for attrID, v := range snap.Values {
					if c.Values == nil {
						c.Values = make(map[string]any)
					}
					c.Values[attrID] = v
				}
			}
		}
	case OpRemoveCases:
		for _, id := range ch.CaseIDs {
			if i := ds.caseIndex(id); i >= 0 {
				ds.Cases = append(ds.Cases[:i], ds.Cases[i+1:]...)
			}
		}
	case OpSetAttributeName:
		if a, ok := ds.Attribute(ch.AttributeID); ok {
			a.Name = ch.Name
		}
	case OpSetAttributeEquation:
		if a, ok := ds.Attribute(ch.AttributeID); ok {
			a.Equation = ch.Equation
		}
	}
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// ParseChanges decodes the change log of a table payload. Malformed
// entries are skipped; their log positions still count toward indexes.
func ParseChanges(t *content.Table) []Change {
	out := make([]Change, 0, len(t.Changes))
	for _, raw := range t.Changes {
		var ch Change
		if err := json.Unmarshal([]byte(raw), &ch); err != nil {
			out = append(out, Change{})
			continue
		}
		out = append(out, ch)
	}
	return out
}

// ApplyChanges replays log entries from the given index onward against
// the dataset and returns the new applied count. from=0 hydrates from
// scratch; from=countAlreadyApplied catches an attached view up without
// replaying history.
func ApplyChanges(ds *DataSet, t *content.Table, from int) int {
	changes := ParseChanges(t)
	if from < 0 {
		from = 0
	}
	for i := from; i < len(changes); i++ {
		changes[i].Apply(ds)
	}
	return len(changes)
}

// Engine binds a table payload to its materialized dataset and tracks
// how many log entries the dataset has seen, mirroring the state the
// table view keeps per tile.
type Engine struct {
	Content *content.Table
	DataSet *DataSet
	synced  int
}

// NewEngine materializes a fresh dataset from the payload's full log.
func NewEngine(t *content.Table) *Engine {
	e := &Engine{Content: t, DataSet: NewDataSet()}
	e.Sync()
	return e
}

// Sync applies any log entries appended since the last Sync.
func (e *Engine) Sync() {
	e.synced = ApplyChanges(e.DataSet, e.Content, e.synced)
}

// Synced returns the number of log entries applied so far.
func (e *Engine) Synced() int { return e.synced }

// SetLinked flags the dataset as driving geometry points.
func (e *Engine) SetLinked(linked bool) { e.DataSet.IsLinked = linked }

func (e *Engine) commit(ch Change) {
	raw, err := json.Marshal(ch)
	if err != nil {
		return
	}
	e.Content.Append(string(raw))
	e.Sync()
}

// CreateAttribute appends a column-creation change and returns the new
// attribute id.
func (e *Engine) CreateAttribute(name string) string {
	id := NewID()
	e.commit(Change{Op: OpCreateAttribute, AttributeID: id, Name: name})
	return id
}

// AddCases appends a case-creation change for the batch. For a linked
// dataset the whole batch is validated first: one non-linkable value
// rejects everything with ErrUnlinkableValue and the log is untouched.
// beforeID of "" appends at the end.
func (e *Engine) AddCases(cases []CaseSnapshot, beforeID string) error {
	if e.DataSet.IsLinked {
		for _, snap := range cases {
			for _, v := range snap.Values {
				if !IsLinkableValue(v) {
					return ErrUnlinkableValue
				}
			}
		}
	}
	withIDs := make([]CaseSnapshot, len(cases))
	for i, snap := range cases {
		if snap.ID == "" {
			snap.ID = NewID()
		}
		withIDs[i] = snap
	}
	e.commit(Change{Op: OpCreateCases, Cases: withIDs, BeforeID: beforeID})
	return nil
}

// SetCaseValues appends an update change for the batch, validated the
// same way as AddCases for linked datasets.
func (e *Engine) SetCaseValues(cases []CaseSnapshot) error {
	if e.DataSet.IsLinked {
		for _, snap := range cases {
			for _, v := range snap.Values {
				if !IsLinkableValue(v) {
					return ErrUnlinkableValue
				}
			}
		}
	}
	e.commit(Change{Op: OpUpdateCases, Cases: cases})
	return nil
}

// RemoveCases appends a removal change for the given case ids.
func (e *Engine) RemoveCases(caseIDs []string) {
	e.commit(Change{Op: OpRemoveCases, CaseIDs: caseIDs})
}

// SetAttributeName appends a rename change.
func (e *Engine) SetAttributeName(attrID, name string) error {
	if _, ok := e.DataSet.Attribute(attrID); !ok {
		return ErrAttributeNotFound
	}
	e.commit(Change{Op: OpSetAttributeName, AttributeID: attrID, Name: name})
	return nil
}

// SetAttributeEquation appends an equation change.
func (e *Engine) SetAttributeEquation(attrID, equation string) error {
	if _, ok := e.DataSet.Attribute(attrID); !ok {
		return ErrAttributeNotFound
	}
	e.commit(Change{Op: OpSetAttributeEquation, AttributeID: attrID, Equation: equation})
	return nil
}
