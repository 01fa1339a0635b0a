package table

import "github.com/mesh-learning/tileboard/pkg/content"

// Cross-tile propagation: after a change is committed and the dataset
// re-synced, the consuming component pushes the resulting point
// geometry into each linked geometry tile. The engine itself stays
// agnostic of who listens.

// PointPosition returns the [x, y] position of a case using the first
// two attributes, canonicalizing non-numeric values to 0.
func PointPosition(ds *DataSet, caseID string) [2]float64 {
	var x, y any
	if len(ds.Attributes) > 0 {
		x = ds.Value(caseID, ds.Attributes[0].ID)
	}
	if len(ds.Attributes) > 1 {
		y = ds.Value(caseID, ds.Attributes[1].ID)
	}
	return [2]float64{CanonicalizeValue(x), CanonicalizeValue(y)}
}

// PointPositions returns ids and positions for the given cases, or for
// every case when caseIDs is nil.
func PointPositions(ds *DataSet, caseIDs []string) ([]string, [][2]float64) {
	if caseIDs == nil {
		caseIDs = ds.CaseIDs()
	}
	positions := make([][2]float64, len(caseIDs))
	for i, id := range caseIDs {
		positions[i] = PointPosition(ds, id)
	}
	return caseIDs, positions
}

// PropagateAdd pushes newly created cases into a linked geometry as
// point creations.
func PropagateAdd(g *content.Geometry, ds *DataSet, caseIDs []string) {
	ids, positions := PointPositions(ds, caseIDs)
	g.AddPoints(ids, positions)
}

// PropagateUpdate pushes changed case values into a linked geometry as
// point position updates.
func PropagateUpdate(g *content.Geometry, ds *DataSet, caseIDs []string) {
	ids, positions := PointPositions(ds, caseIDs)
	g.UpdatePoints(ids, positions)
}

// PropagateRemove removes the points of deleted cases from a linked
// geometry.
func PropagateRemove(g *content.Geometry, caseIDs []string) {
	g.RemovePoints(caseIDs)
}

// PropagateLabels pushes the first two attribute names into a linked
// geometry as axis labels.
func PropagateLabels(g *content.Geometry, ds *DataSet) {
	var xName, yName string
	if len(ds.Attributes) > 0 {
		xName = ds.Attributes[0].Name
	}
	if len(ds.Attributes) > 1 {
		yName = ds.Attributes[1].Name
	}
	g.UpdateAxisLabels(xName, yName)
}
