package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, dir string) *Backend {
	t.Helper()
	b, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestSchemaVersionGuard(t *testing.T) {
	dir := t.TempDir()
	b := openTest(t, dir)
	require.NoError(t, b.Close())

	db, err := sql.Open("sqlite", filepath.Join(dir, DatabaseFile))
	require.NoError(t, err)
	var v string
	require.NoError(t, db.QueryRow(`SELECT value FROM meta WHERE key = 'schemaVersion'`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
	_, err = db.Exec(`UPDATE meta SET value = '99' WHERE key = 'schemaVersion'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// A database stamped by an incompatible layout is refused.
	_, err = Open(dir, zerolog.Nop())
	require.ErrorContains(t, err, "schema version")
}

func TestOpenCreatesDatabase(t *testing.T) {
	b := openTest(t, t.TempDir())
	defer b.Close()

	got, err := b.Hub().Once("anything")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWritesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	b := openTest(t, dir)
	require.NoError(t, b.Hub().Set("authed/portals/p/users/u1/documents/k1", map[string]any{
		"version": "1.0",
		"content": `{"tileMap":{},"rowMap":{},"rowOrder":[]}`,
	}))
	require.NoError(t, b.Hub().Set("authed/portals/p/users/u1/latestGroupId", "3"))
	require.NoError(t, b.Close())

	b2 := openTest(t, dir)
	defer b2.Close()

	got, err := b2.Hub().Once("authed/portals/p/users/u1/documents/k1/version")
	require.NoError(t, err)
	assert.Equal(t, "1.0", got)

	got, err = b2.Hub().Once("authed/portals/p/users/u1/latestGroupId")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
}

func TestDeleteSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	b := openTest(t, dir)
	require.NoError(t, b.Hub().Set("a/b", "x"))
	require.NoError(t, b.Hub().Set("a/c", "y"))
	require.NoError(t, b.Hub().Delete("a/b"))
	require.NoError(t, b.Close())

	b2 := openTest(t, dir)
	defer b2.Close()

	got, err := b2.Hub().Once("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": "y"}, got)
}

func TestLeafReplacedByDeeperWrite(t *testing.T) {
	dir := t.TempDir()

	b := openTest(t, dir)
	require.NoError(t, b.Hub().Set("node", "scalar"))
	require.NoError(t, b.Hub().Set("node/child", "deep"))
	require.NoError(t, b.Close())

	b2 := openTest(t, dir)
	defer b2.Close()

	got, err := b2.Hub().Once("node")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"child": "deep"}, got, "stale scalar row must not resurrect")
}

func TestArraysAndNumbersRoundTrip(t *testing.T) {
	dir := t.TempDir()

	b := openTest(t, dir)
	require.NoError(t, b.Hub().Set("rec", map[string]any{
		"order": []any{"r1", "r2"},
		"count": float64(7),
		"flag":  true,
	}))
	require.NoError(t, b.Close())

	b2 := openTest(t, dir)
	defer b2.Close()

	got, err := b2.Hub().Once("rec")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"order": []any{"r1", "r2"},
		"count": float64(7),
		"flag":  true,
	}, got)
}
