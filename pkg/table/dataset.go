// Package table implements the change-log engine behind the table tool:
// an append-only log of typed changes replayed against an in-memory
// dataset, both for fresh hydration and incremental catch-up. Datasets
// flagged as linked (driving geometry points) accept only
// numeric-or-blank values.
package table

import (
	"strconv"

	"github.com/google/uuid"
)

// Attribute is a table column.
type Attribute struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Equation string `json:"equation,omitempty"`
}

// Case is a table row: values keyed by attribute id.
type Case struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// DataSet is the materialized table state reconstructed from a change
// log. IsLinked marks datasets whose values drive geometry points.
type DataSet struct {
	Attributes []*Attribute
	Cases      []*Case
	IsLinked   bool
}

// NewDataSet returns an empty dataset.
func NewDataSet() *DataSet {
	return &DataSet{}
}

// NewID generates an id for attributes and cases.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Attribute returns the attribute with the given id.
func (ds *DataSet) Attribute(attrID string) (*Attribute, bool) {
	for _, a := range ds.Attributes {
		if a.ID == attrID {
			return a, true
		}
	}
	return nil, false
}

// Case returns the case with the given id.
func (ds *DataSet) Case(caseID string) (*Case, bool) {
	for _, c := range ds.Cases {
		if c.ID == caseID {
			return c, true
		}
	}
	return nil, false
}

// CaseCount returns the number of cases.
func (ds *DataSet) CaseCount() int { return len(ds.Cases) }

// Value returns the value of attrID in caseID, nil if absent.
func (ds *DataSet) Value(caseID, attrID string) any {
	c, ok := ds.Case(caseID)
	if !ok {
		return nil
	}
	return c.Values[attrID]
}

// CaseIDs returns the case ids in row order.
func (ds *DataSet) CaseIDs() []string {
	ids := make([]string, len(ds.Cases))
	for i, c := range ds.Cases {
		ids[i] = c.ID
	}
	return ids
}

func (ds *DataSet) caseIndex(caseID string) int {
	for i, c := range ds.Cases {
		if c.ID == caseID {
			return i
		}
	}
	return -1
}

// IsLinkableValue reports whether a value may enter a linked dataset:
// blank (nil or empty string) or numeric.
func IsLinkableValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		if val == "" {
			return true
		}
		_, err := strconv.ParseFloat(val, 64)
		return err == nil
	case float64, float32, int, int32, int64:
		return true
	default:
		return false
	}
}

// CanonicalizeValue coerces a cell value to a float64 position
// component; non-numeric values become 0.
func CanonicalizeValue(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
