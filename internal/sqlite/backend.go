// Package sqlite persists the store tree in a local SQLite database.
// The database is the durable form; at open time the whole tree is
// loaded into an in-process hub, and every later mutation is written
// through synchronously. Rows hold leaves only, so overlapping writes
// reduce to deleting a path prefix and reinserting.
package sqlite

import (
	"database/sql"
	"encoding/json"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-learning/tileboard/internal/memstore"
)

//go:embed schema.sql
var schemaSQL string

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "tileboard.db"

// schemaVersion is stamped into the meta table on creation and checked
// on every open, so a newer layout is refused instead of misread.
const schemaVersion = "1"

// Backend is a hub backed by a SQLite file.
type Backend struct {
	db  *sql.DB
	hub *memstore.Hub
	log zerolog.Logger
}

// Open creates or opens the database under dataDir and loads its tree
// into a fresh hub.
func Open(dataDir string, log zerolog.Logger) (*Backend, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := checkSchemaVersion(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}

	b := &Backend{db: db, hub: memstore.NewHub(), log: log}
	n, err := b.load()
	if err != nil {
		b.hub.Close()
		db.Close()
		return nil, err
	}
	b.log.Debug().Str("path", dbPath).Int("leaves", n).Msg("store loaded")
	b.hub.SetWriteHook(b.writeThrough)
	return b, nil
}

// Hub returns the live tree the backend persists.
func (b *Backend) Hub() *memstore.Hub { return b.hub }

// Close stops the hub and closes the database.
func (b *Backend) Close() error {
	b.hub.Close()
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// checkSchemaVersion stamps a fresh database and rejects one written by
// an incompatible layout.
func checkSchemaVersion(db *sql.DB) error {
	var v string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schemaVersion'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(`INSERT INTO meta (key, value) VALUES ('schemaVersion', ?)`, schemaVersion)
		return err
	}
	if err != nil {
		return err
	}
	if v != schemaVersion {
		return fmt.Errorf("unsupported schema version %s, want %s", v, schemaVersion)
	}
	return nil
}

func (b *Backend) load() (int, error) {
	rows, err := b.db.Query(`SELECT path, value FROM nodes ORDER BY path`)
	if err != nil {
		return 0, fmt.Errorf("load tree: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return n, fmt.Errorf("load tree: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			b.log.Warn().Str("path", path).Err(err).Msg("skipping unreadable leaf")
			continue
		}
		b.hub.Load(path, value)
		n++
	}
	return n, rows.Err()
}

// writeThrough mirrors one hub mutation into the database. It runs on
// the hub's mutation path, so persistence is synchronous with the
// write that caused it.
func (b *Backend) writeThrough(path string, value any) {
	tx, err := b.db.Begin()
	if err != nil {
		b.log.Error().Str("path", path).Err(err).Msg("persist failed")
		return
	}
	if err := replaceSubtree(tx, path, value); err != nil {
		tx.Rollback()
		b.log.Error().Str("path", path).Err(err).Msg("persist failed")
		return
	}
	if err := tx.Commit(); err != nil {
		b.log.Error().Str("path", path).Err(err).Msg("persist failed")
	}
}

// replaceSubtree removes every row the write shadows, then inserts the
// new leaves. Shadowed rows are the path itself, its descendants, and
// any ancestor that used to be a leaf.
func replaceSubtree(tx *sql.Tx, path string, value any) error {
	if _, err := tx.Exec(
		`DELETE FROM nodes WHERE path = ? OR path LIKE ?`,
		path, path+"/%",
	); err != nil {
		return err
	}
	segs := strings.Split(path, "/")
	for i := 1; i < len(segs); i++ {
		ancestor := strings.Join(segs[:i], "/")
		if _, err := tx.Exec(`DELETE FROM nodes WHERE path = ?`, ancestor); err != nil {
			return err
		}
	}
	if value == nil {
		return nil
	}
	leaves := map[string]any{}
	flatten(path, value, leaves)
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw, err := json.Marshal(leaves[k])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO nodes (path, value) VALUES (?, ?)
			 ON CONFLICT(path) DO UPDATE SET value = excluded.value`,
			k, string(raw),
		); err != nil {
			return err
		}
	}
	return nil
}

// flatten records every leaf of value under its full path. Maps recurse;
// everything else, arrays included, is a leaf.
func flatten(path string, value any, out map[string]any) {
	m, ok := value.(map[string]any)
	if !ok || len(m) == 0 {
		out[path] = value
		return
	}
	for k, v := range m {
		flatten(path+"/"+k, v, out)
	}
}
