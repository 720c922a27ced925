package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/speedlesen/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// sqliteBackend is the transactional backend. Every multi-table mutation
// runs in one transaction on a single connection.
type sqliteBackend struct {
	db *sql.DB
}

var _ backend = (*sqliteBackend)(nil)

// openSQLite opens or creates the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func openSQLite(ctx context.Context, path string) (*sqliteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		closeQuietly(db)
		return nil, err
	}
	return &sqliteBackend{db: db}, nil
}

func closeQuietly(db *sql.DB) {
	if cerr := db.Close(); cerr != nil {
		// Best-effort close on open failure.
		_ = cerr
	}
}

func (b *sqliteBackend) kind() BackendKind { return BackendSQLite }

func (b *sqliteBackend) close() error {
	return b.db.Close()
}

// withTx runs fn in one transaction. Any error rolls the whole scope back.
func (b *sqliteBackend) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	if err = fn(tx); err != nil {
		return storageErr(op, err)
	}
	if err = tx.Commit(); err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	return nil
}

func (b *sqliteBackend) putGroup(ctx context.Context, g model.Group) error {
	return b.withTx(ctx, "add group", func(tx *sql.Tx) error {
		return upsertGroupTx(ctx, tx, g)
	})
}

func (b *sqliteBackend) addMember(ctx context.Context, groupID string, p model.Person) error {
	return b.withTx(ctx, "add member", func(tx *sql.Tx) error {
		if err := ensureGroupTx(ctx, tx, groupID); err != nil {
			return err
		}
		return insertMemberTx(ctx, tx, groupID, p, false)
	})
}

func (b *sqliteBackend) groups(ctx context.Context) ([]model.Group, error) {
	var out []model.Group
	err := b.withTx(ctx, "get groups", func(tx *sql.Tx) error {
		var err error
		out, err = loadGroupsTx(ctx, tx)
		return err
	})
	return out, err
}

func (b *sqliteBackend) members(ctx context.Context, groupID string) ([]model.Person, error) {
	var out []model.Person
	err := b.withTx(ctx, "get members", func(tx *sql.Tx) error {
		var err error
		out, err = loadMembersTx(ctx, tx, groupID)
		return err
	})
	return out, err
}

func (b *sqliteBackend) putWeek(ctx context.Context, w model.Week, now time.Time) (time.Time, error) {
	err := b.withTx(ctx, "write week", func(tx *sql.Tx) error {
		if w.SavedAt.IsZero() {
			saved, err := savedAtTx(ctx, tx, w.Key)
			if err != nil {
				return err
			}
			if saved.IsZero() {
				saved = now
			}
			w.SavedAt = saved
		}
		return putWeekTx(ctx, tx, w)
	})
	return w.SavedAt, err
}

// savedAtTx returns the stored save time of key, or the zero time.
func savedAtTx(ctx context.Context, tx *sql.Tx, key string) (time.Time, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT saved_at FROM weeks WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && raw == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func (b *sqliteBackend) weeks(ctx context.Context, groupID string) ([]model.Week, error) {
	var out []model.Week
	err := b.withTx(ctx, "get weeks", func(tx *sql.Tx) error {
		var err error
		out, err = loadWeeksTx(ctx, tx, groupID)
		return err
	})
	return out, err
}

func (b *sqliteBackend) putSetting(ctx context.Context, s model.Setting) error {
	return b.withTx(ctx, "put setting", func(tx *sql.Tx) error {
		return putSettingTx(ctx, tx, s)
	})
}

func (b *sqliteBackend) settings(ctx context.Context) ([]model.Setting, error) {
	var out []model.Setting
	err := b.withTx(ctx, "get settings", func(tx *sql.Tx) error {
		var err error
		out, err = loadSettingsTx(ctx, tx)
		return err
	})
	return out, err
}

func (b *sqliteBackend) reset(ctx context.Context) error {
	return b.withTx(ctx, "reset", func(tx *sql.Tx) error {
		return resetTx(ctx, tx)
	})
}

func (b *sqliteBackend) snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	err := b.withTx(ctx, "export", func(tx *sql.Tx) error {
		var err error
		if snap.Groups, err = loadGroupsTx(ctx, tx); err != nil {
			return err
		}
		if snap.Weeks, err = loadWeeksTx(ctx, tx, ""); err != nil {
			return err
		}
		snap.Settings, err = loadSettingsTx(ctx, tx)
		return err
	})
	return snap, err
}

func (b *sqliteBackend) apply(ctx context.Context, snap model.Snapshot, overwrite bool) error {
	return b.withTx(ctx, "import", func(tx *sql.Tx) error {
		if overwrite {
			if err := resetTx(ctx, tx); err != nil {
				return err
			}
		}
		for _, g := range snap.Groups {
			if err := upsertGroupTx(ctx, tx, g); err != nil {
				return err
			}
		}
		for _, w := range snap.Weeks {
			if err := putWeekTx(ctx, tx, w); err != nil {
				return err
			}
		}
		for _, s := range snap.Settings {
			if err := putSettingTx(ctx, tx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *sqliteBackend) missingCollections(ctx context.Context) ([]string, error) {
	missing, err := missingCollections(ctx, b.db)
	if err != nil {
		return nil, &model.StorageError{Op: "verify schema", Err: err}
	}
	return missing, nil
}

func ensureGroupTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO groups (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, id)
	return err
}

func upsertGroupTx(ctx context.Context, tx *sql.Tx, g model.Group) error {
	if err := ensureGroupTx(ctx, tx, g.ID); err != nil {
		return err
	}
	for _, p := range g.Members {
		if err := insertMemberTx(ctx, tx, g.ID, p, true); err != nil {
			return err
		}
	}
	return nil
}

// insertMemberTx appends p to the roster. An existing pid keeps its position;
// with update set it takes the new name and alias, otherwise it is left alone.
func insertMemberTx(ctx context.Context, tx *sql.Tx, groupID string, p model.Person, update bool) error {
	conflict := `DO NOTHING`
	if update {
		conflict = `DO UPDATE SET name = excluded.name, alias = excluded.alias`
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO members (group_id, pid, name, alias, position)
		SELECT ?, ?, ?, ?, COALESCE(MAX(position) + 1, 0) FROM members WHERE group_id = ?
		ON CONFLICT(group_id, pid) `+conflict,
		groupID, p.PID, p.Name, p.Alias, groupID,
	)
	return err
}

func putWeekTx(ctx context.Context, tx *sql.Tx, w model.Week) error {
	if err := ensureGroupTx(ctx, tx, w.GroupID); err != nil {
		return err
	}
	savedAt := ""
	if !w.SavedAt.IsZero() {
		savedAt = w.SavedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO weeks (key, group_id, week_number, person_count, improved_wpm, reduced_errors, coaching_met, mission_met, points_raw, points_normalized, points_cumulative, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			person_count = excluded.person_count,
			improved_wpm = excluded.improved_wpm,
			reduced_errors = excluded.reduced_errors,
			coaching_met = excluded.coaching_met,
			mission_met = excluded.mission_met,
			points_raw = excluded.points_raw,
			points_normalized = excluded.points_normalized,
			points_cumulative = excluded.points_cumulative,
			saved_at = excluded.saved_at`,
		w.Key,
		w.GroupID,
		w.WeekNumber,
		w.PersonCount,
		w.Flags.ImprovedWPM,
		w.Flags.ReducedErrors,
		w.Flags.CoachingMet,
		w.Flags.MissionMet,
		w.PointsRaw,
		w.PointsNormalized,
		w.PointsCumulative,
		savedAt,
	)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM week_persons WHERE week_key = ?`, w.Key); err != nil {
		return err
	}
	if len(w.Persons) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO week_persons (week_key, position, pid, name, words3, wpm, wps, errors, wcpm, person_points)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for i, p := range w.Persons {
			if _, err := stmt.ExecContext(ctx, w.Key, i, p.PID, p.Name, p.Words3Min, p.WPM, p.WPS, p.Errors, p.WCPM, p.PersonPoints); err != nil {
				return err
			}
		}
	}

	roster, err := loadMembersTx(ctx, tx, w.GroupID)
	if err != nil {
		return err
	}
	for _, p := range reconcileRoster(roster, w.Persons) {
		if err := insertMemberTx(ctx, tx, w.GroupID, p, false); err != nil {
			return err
		}
	}
	return nil
}

func putSettingTx(ctx context.Context, tx *sql.Tx, s model.Setting) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settings (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		s.Name, string(s.Value))
	return err
}

func resetTx(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"week_persons", "weeks", "members", "groups", "settings"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func loadGroupsTx(ctx context.Context, tx *sql.Tx) ([]model.Group, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var groups []model.Group
	index := map[string]int{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			closeRows(rows)
			return nil, err
		}
		index[id] = len(groups)
		groups = append(groups, model.Group{ID: id})
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, err
	}
	closeRows(rows)

	rows, err = tx.QueryContext(ctx, `SELECT group_id, pid, name, alias FROM members ORDER BY group_id, position`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	for rows.Next() {
		var groupID string
		var p model.Person
		if err := rows.Scan(&groupID, &p.PID, &p.Name, &p.Alias); err != nil {
			return nil, err
		}
		if i, ok := index[groupID]; ok {
			groups[i].Members = append(groups[i].Members, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groups, nil
}

func loadMembersTx(ctx context.Context, tx *sql.Tx, groupID string) ([]model.Person, error) {
	rows, err := tx.QueryContext(ctx, `SELECT pid, name, alias FROM members WHERE group_id = ? ORDER BY position`, groupID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var out []model.Person
	for rows.Next() {
		var p model.Person
		if err := rows.Scan(&p.PID, &p.Name, &p.Alias); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadWeeksTx loads the weeks of one group, or of every group when groupID
// is empty, ordered by group and week number.
func loadWeeksTx(ctx context.Context, tx *sql.Tx, groupID string) ([]model.Week, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT key, group_id, week_number, person_count, improved_wpm, reduced_errors, coaching_met, mission_met,
			points_raw, points_normalized, points_cumulative, saved_at
		 FROM weeks
		 WHERE (? = '' OR group_id = ?)
		 ORDER BY group_id, week_number`, groupID, groupID)
	if err != nil {
		return nil, err
	}
	var weeks []model.Week
	index := map[string]int{}
	for rows.Next() {
		var w model.Week
		var savedAt string
		if err := rows.Scan(&w.Key, &w.GroupID, &w.WeekNumber, &w.PersonCount,
			&w.Flags.ImprovedWPM, &w.Flags.ReducedErrors, &w.Flags.CoachingMet, &w.Flags.MissionMet,
			&w.PointsRaw, &w.PointsNormalized, &w.PointsCumulative, &savedAt); err != nil {
			closeRows(rows)
			return nil, err
		}
		if savedAt != "" {
			parsed, err := time.Parse(time.RFC3339Nano, savedAt)
			if err != nil {
				closeRows(rows)
				return nil, err
			}
			w.SavedAt = parsed.UTC()
		}
		index[w.Key] = len(weeks)
		weeks = append(weeks, w)
	}
	if err := rows.Err(); err != nil {
		closeRows(rows)
		return nil, err
	}
	closeRows(rows)

	rows, err = tx.QueryContext(ctx,
		`SELECT wp.week_key, wp.pid, wp.name, wp.words3, wp.wpm, wp.wps, wp.errors, wp.wcpm, wp.person_points
		 FROM week_persons wp
		 JOIN weeks w ON w.key = wp.week_key
		 WHERE (? = '' OR w.group_id = ?)
		 ORDER BY wp.week_key, wp.position`, groupID, groupID)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	for rows.Next() {
		var key string
		var p model.PersonMeasurement
		if err := rows.Scan(&key, &p.PID, &p.Name, &p.Words3Min, &p.WPM, &p.WPS, &p.Errors, &p.WCPM, &p.PersonPoints); err != nil {
			return nil, err
		}
		if i, ok := index[key]; ok {
			weeks[i].Persons = append(weeks[i].Persons, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return weeks, nil
}

func loadSettingsTx(ctx context.Context, tx *sql.Tx) ([]model.Setting, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name, value FROM settings ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var out []model.Setting
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out = append(out, model.Setting{Name: name, Value: []byte(value)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func closeRows(rows *sql.Rows) {
	_ = rows.Close()
}
