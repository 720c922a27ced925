package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Schema version tracking (PRAGMA user_version):
// 0 - empty database
// 1 - groups, members, weeks, week_persons, settings
const currentSchemaVersion = 1

// Collection names shared by both backends.
const (
	CollectionGroups   = "groups"
	CollectionWeeks    = "weeks"
	CollectionSettings = "settings"
)

// Collections lists the logical collections in dependency order.
func Collections() []string {
	return []string{CollectionGroups, CollectionWeeks, CollectionSettings}
}

// schemaObject is a table or index the sqlite backend requires, tagged with
// the logical collection it belongs to.
type schemaObject struct {
	collection string
	kind       string
	name       string
	ddl        string
}

var schemaObjects = []schemaObject{
	{CollectionGroups, "table", "groups", `CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY
		);`},
	{CollectionGroups, "table", "members", `CREATE TABLE IF NOT EXISTS members (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			pid TEXT NOT NULL,
			name TEXT NOT NULL,
			alias TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (group_id, pid)
		);`},
	{CollectionWeeks, "table", "weeks", `CREATE TABLE IF NOT EXISTS weeks (
			key TEXT PRIMARY KEY,
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			week_number INTEGER NOT NULL,
			person_count INTEGER NOT NULL,
			improved_wpm INTEGER NOT NULL,
			reduced_errors INTEGER NOT NULL,
			coaching_met INTEGER NOT NULL,
			mission_met INTEGER NOT NULL,
			points_raw REAL NOT NULL,
			points_normalized REAL NOT NULL,
			points_cumulative REAL NOT NULL,
			saved_at TEXT NOT NULL,
			UNIQUE (group_id, week_number)
		);`},
	{CollectionWeeks, "table", "week_persons", `CREATE TABLE IF NOT EXISTS week_persons (
			week_key TEXT NOT NULL REFERENCES weeks(key) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			pid TEXT NOT NULL,
			name TEXT NOT NULL,
			words3 REAL NOT NULL,
			wpm REAL NOT NULL,
			wps REAL NOT NULL,
			errors REAL NOT NULL,
			wcpm REAL NOT NULL,
			person_points REAL NOT NULL,
			PRIMARY KEY (week_key, position)
		);`},
	{CollectionSettings, "table", "settings", `CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`},
	{CollectionGroups, "index", "idx_members_group", `CREATE INDEX IF NOT EXISTS idx_members_group ON members(group_id, position);`},
	{CollectionWeeks, "index", "idx_weeks_group", `CREATE INDEX IF NOT EXISTS idx_weeks_group ON weeks(group_id, week_number);`},
}

// migrate creates the schema once and records the version. It is safe to run
// on every open.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	for _, obj := range schemaObjects {
		if _, err := db.ExecContext(ctx, obj.ddl); err != nil {
			return fmt.Errorf("failed to create %s %s: %w", obj.kind, obj.name, err)
		}
	}
	if version < currentSchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}
	return nil
}

// missingCollections reports the logical collections whose tables or
// indexes are absent from the database.
func missingCollections(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT type, name FROM sqlite_master WHERE type IN ('table', 'index')`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	present := map[string]struct{}{}
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, err
		}
		present[kind+":"+name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	missing := map[string]struct{}{}
	for _, obj := range schemaObjects {
		if _, ok := present[obj.kind+":"+obj.name]; !ok {
			missing[obj.collection] = struct{}{}
		}
	}
	out := make([]string, 0, len(missing))
	for name := range missing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
