// Package document implements the tile/row document model: an ordered
// collection of rows, each holding one or more tiles, wrapped by a
// Document carrying identity, visibility, and change subscriptions.
//
// All mutations go through entry-point methods that preserve the
// structural invariants atomically: every tile id appears in exactly one
// row, the tile map keys equal the tiles referenced by rows, and the row
// map keys equal the row-order entries. UI-driven edge cases (stale
// indexes, unknown ids) degrade by clamping or no-op rather than error.
package document
