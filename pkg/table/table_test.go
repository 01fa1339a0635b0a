package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-learning/tileboard/pkg/content"
)

// buildLog commits a representative sequence of operations and returns
// the populated payload.
func buildLog(t *testing.T) *content.Table {
	t.Helper()
	payload := content.NewTable()
	e := NewEngine(payload)

	x := e.CreateAttribute("x")
	y := e.CreateAttribute("y")
	require.NoError(t, e.AddCases([]CaseSnapshot{
		{ID: "c1", Values: map[string]any{x: "1", y: "2"}},
		{ID: "c2", Values: map[string]any{x: "3", y: "4"}},
		{ID: "c3", Values: map[string]any{x: "5", y: "6"}},
	}, ""))
	require.NoError(t, e.SetCaseValues([]CaseSnapshot{
		{ID: "c2", Values: map[string]any{x: "30"}},
	}))
	e.RemoveCases([]string{"c1"})
	require.NoError(t, e.SetAttributeName(x, "time"))
	require.NoError(t, e.SetAttributeEquation(y, "time*2"))
	require.NoError(t, e.AddCases([]CaseSnapshot{
		{ID: "c4", Values: map[string]any{x: "7"}},
	}, "c3"))
	return payload
}

func datasetState(ds *DataSet) (attrs []string, caseIDs []string) {
	for _, a := range ds.Attributes {
		attrs = append(attrs, a.ID+"="+a.Name+"/"+a.Equation)
	}
	return attrs, ds.CaseIDs()
}

func TestReplayResumableAtEveryIndex(t *testing.T) {
	payload := buildLog(t)

	full := NewDataSet()
	total := ApplyChanges(full, payload, 0)
	require.Equal(t, payload.Len(), total)
	fullAttrs, fullCases := datasetState(full)

	for k := 0; k <= total; k++ {
		// Replay the prefix, then resume from k.
		ds := NewDataSet()
		prefix := &content.Table{Type: payload.Type, Changes: payload.Changes[:k]}
		n := ApplyChanges(ds, prefix, 0)
		require.Equal(t, k, n)
		ApplyChanges(ds, payload, k)

		attrs, cases := datasetState(ds)
		assert.Equal(t, fullAttrs, attrs, "prefix %d", k)
		assert.Equal(t, fullCases, cases, "prefix %d", k)
	}
}

func TestMalformedEntriesKeepIndexes(t *testing.T) {
	payload := content.NewTable()
	e := NewEngine(payload)
	x := e.CreateAttribute("x")
	payload.Append("{not json")
	require.NoError(t, e.AddCases([]CaseSnapshot{{ID: "c1", Values: map[string]any{x: "1"}}}, ""))

	ds := NewDataSet()
	n := ApplyChanges(ds, payload, 0)
	assert.Equal(t, 3, n, "malformed entries still count")
	assert.Equal(t, []string{"c1"}, ds.CaseIDs())
}

func TestEngineCatchUpAcrossViews(t *testing.T) {
	payload := content.NewTable()
	writer := NewEngine(payload)
	x := writer.CreateAttribute("x")

	// A second view attaches mid-history, then catches up incrementally.
	reader := NewEngine(payload)
	assert.Equal(t, 1, reader.Synced())

	require.NoError(t, writer.AddCases([]CaseSnapshot{{ID: "c1", Values: map[string]any{x: "5"}}}, ""))
	assert.Zero(t, reader.DataSet.CaseCount())
	reader.Sync()
	assert.Equal(t, 1, reader.DataSet.CaseCount())
	assert.Equal(t, writer.Synced(), reader.Synced())
}

func TestLinkedBatchRejectedWhole(t *testing.T) {
	payload := content.NewTable()
	e := NewEngine(payload)
	x := e.CreateAttribute("x")
	e.SetLinked(true)
	before := payload.Len()

	err := e.AddCases([]CaseSnapshot{
		{Values: map[string]any{x: "1"}},
		{Values: map[string]any{x: "not a number"}},
	}, "")
	require.ErrorIs(t, err, ErrUnlinkableValue)
	assert.Equal(t, before, payload.Len(), "rejected batch leaves no log entry")
	assert.Zero(t, e.DataSet.CaseCount())

	err = e.SetCaseValues([]CaseSnapshot{{ID: "c1", Values: map[string]any{x: "oops"}}})
	require.ErrorIs(t, err, ErrUnlinkableValue)
}

func TestUnlinkedBatchAcceptsAnything(t *testing.T) {
	payload := content.NewTable()
	e := NewEngine(payload)
	x := e.CreateAttribute("x")

	require.NoError(t, e.AddCases([]CaseSnapshot{
		{ID: "c1", Values: map[string]any{x: "hello"}},
	}, ""))
	assert.Equal(t, "hello", e.DataSet.Value("c1", x))
}

func TestBlankValuesAreLinkable(t *testing.T) {
	payload := content.NewTable()
	e := NewEngine(payload)
	x := e.CreateAttribute("x")
	e.SetLinked(true)

	require.NoError(t, e.AddCases([]CaseSnapshot{
		{ID: "c1", Values: map[string]any{x: ""}},
		{ID: "c2", Values: map[string]any{x: nil}},
		{ID: "c3", Values: map[string]any{x: "2.5"}},
		{ID: "c4", Values: map[string]any{x: float64(7)}},
	}, ""))
	assert.Equal(t, 4, e.DataSet.CaseCount())
}

func TestIsLinkableValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, true},
		{"blank", "", true},
		{"numeric string", "3.25", true},
		{"negative numeric string", "-2", true},
		{"float", float64(1.5), true},
		{"word", "apple", false},
		{"mixed", "3 apples", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLinkableValue(tt.v))
		})
	}
}

func TestCanonicalizeValue(t *testing.T) {
	assert.Equal(t, float64(3.25), CanonicalizeValue("3.25"))
	assert.Equal(t, float64(7), CanonicalizeValue(float64(7)))
	assert.Zero(t, CanonicalizeValue("apple"))
	assert.Zero(t, CanonicalizeValue(nil))
	assert.Zero(t, CanonicalizeValue(""))
}

func TestAttributeOperationsRequireKnownID(t *testing.T) {
	e := NewEngine(content.NewTable())
	require.ErrorIs(t, e.SetAttributeName("nope", "x"), ErrAttributeNotFound)
	require.ErrorIs(t, e.SetAttributeEquation("nope", "x*2"), ErrAttributeNotFound)
}

func TestGeometryPropagation(t *testing.T) {
	payload := content.NewTable()
	e := NewEngine(payload)
	x := e.CreateAttribute("x")
	y := e.CreateAttribute("y")
	e.SetLinked(true)
	require.NoError(t, e.AddCases([]CaseSnapshot{
		{ID: "c1", Values: map[string]any{x: "1", y: "2"}},
		{ID: "c2", Values: map[string]any{x: "", y: "4"}},
	}, ""))

	g := content.NewGeometry()
	seeded := len(g.Changes)

	PropagateAdd(g, e.DataSet, []string{"c1", "c2"})
	require.Len(t, g.Changes, seeded+1)

	changes := g.ParseChanges(seeded)
	require.Len(t, changes, 1)
	assert.Equal(t, "create", changes[0].Operation)
	assert.Equal(t, "point", changes[0].Target)

	// Blank coordinates canonicalize to 0.
	ids, positions := PointPositions(e.DataSet, []string{"c1", "c2"})
	assert.Equal(t, []string{"c1", "c2"}, ids)
	assert.Equal(t, [][2]float64{{1, 2}, {0, 4}}, positions)

	PropagateUpdate(g, e.DataSet, []string{"c1"})
	PropagateRemove(g, []string{"c2"})
	PropagateLabels(g, e.DataSet)
	assert.Len(t, g.Changes, seeded+4)
}
