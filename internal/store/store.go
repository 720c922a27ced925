// Package store persists groups, weekly measurements and settings behind a
// single facade with a transactional and a snapshot-file backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verte-zerg/speedlesen/internal/interchange"
	"github.com/verte-zerg/speedlesen/internal/model"
)

// BackendKind names a storage backend.
type BackendKind string

// Backend kinds accepted by Open.
const (
	BackendAuto     BackendKind = "auto"
	BackendSQLite   BackendKind = "sqlite"
	BackendSnapshot BackendKind = "snapshot"
)

// ParseBackendKind validates a backend name from config or flags.
func ParseBackendKind(s string) (BackendKind, error) {
	switch k := BackendKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", BackendAuto:
		return BackendAuto, nil
	case BackendSQLite, BackendSnapshot:
		return k, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, sqlite or snapshot)", s)
	}
}

// backend is implemented by the sqlite and snapshot stores. Inputs are
// already normalized by Store.
type backend interface {
	kind() BackendKind
	putGroup(ctx context.Context, g model.Group) error
	addMember(ctx context.Context, groupID string, p model.Person) error
	groups(ctx context.Context) ([]model.Group, error)
	members(ctx context.Context, groupID string) ([]model.Person, error)
	// putWeek upserts w. A zero SavedAt keeps the stored save time of the
	// key, or takes now for a new key. It returns the save time written.
	putWeek(ctx context.Context, w model.Week, now time.Time) (time.Time, error)
	// weeks returns the weeks of groupID, or of every group when empty.
	weeks(ctx context.Context, groupID string) ([]model.Week, error)
	putSetting(ctx context.Context, s model.Setting) error
	settings(ctx context.Context) ([]model.Setting, error)
	reset(ctx context.Context) error
	snapshot(ctx context.Context) (model.Snapshot, error)
	apply(ctx context.Context, snap model.Snapshot, overwrite bool) error
	missingCollections(ctx context.Context) ([]string, error)
	close() error
}

// Options configures Open.
type Options struct {
	Backend BackendKind
	// Path is the sqlite database file.
	Path string
	// SnapshotPath is the fallback JSON file. Empty keeps the snapshot
	// backend in memory.
	SnapshotPath string
	Logger       *zap.Logger
	Now          func() time.Time
}

// Store is the facade used by every caller. The backend is chosen once at
// Open and never changes.
type Store struct {
	b   backend
	log *zap.Logger
	now func() time.Time
}

// Open selects and opens a backend. With BackendAuto the sqlite database is
// tried first and the snapshot file is used when it cannot be opened.
func Open(ctx context.Context, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	kind := opts.Backend
	if kind == "" {
		kind = BackendAuto
	}

	var b backend
	switch kind {
	case BackendSQLite:
		sb, err := openSQLite(ctx, opts.Path)
		if err != nil {
			return nil, &model.StorageError{Op: "open sqlite", Err: err}
		}
		b = sb
	case BackendSnapshot:
		sb, err := openSnapshot(opts.SnapshotPath, now)
		if err != nil {
			return nil, &model.StorageError{Op: "open snapshot", Err: err}
		}
		b = sb
	case BackendAuto:
		sb, err := openSQLite(ctx, opts.Path)
		if err == nil {
			b = sb
			break
		}
		log.Warn("sqlite backend unavailable, using snapshot file",
			zap.String("path", opts.Path),
			zap.String("snapshot", opts.SnapshotPath),
			zap.Error(err),
		)
		fb, ferr := openSnapshot(opts.SnapshotPath, now)
		if ferr != nil {
			return nil, &model.StorageError{Op: "open snapshot", Err: ferr}
		}
		b = fb
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}

	log.Debug("store opened", zap.String("backend", string(b.kind())))
	return &Store{b: b, log: log, now: now}, nil
}

// Backend reports the backend selected at Open.
func (s *Store) Backend() BackendKind {
	return s.b.kind()
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

// AddGroup creates the group if needed and upserts the members it carries by
// pid. Existing members not mentioned are kept.
func (s *Store) AddGroup(ctx context.Context, g model.Group) error {
	const op = "add group"
	g.ID = model.CleanID(g.ID)
	if g.ID == "" {
		return &model.ValidationError{Op: op, Field: "id"}
	}
	members := make([]model.Person, 0, len(g.Members))
	for i, m := range g.Members {
		p, ok := model.NormalizePerson(m)
		if !ok {
			return &model.ValidationError{Op: op, Field: fmt.Sprintf("members[%d].pid", i)}
		}
		members = append(members, p)
	}
	g.Members = upsertMembers(nil, members)
	return s.b.putGroup(ctx, g)
}

// Groups returns every group with its roster, sorted by id.
func (s *Store) Groups(ctx context.Context) ([]model.Group, error) {
	groups, err := s.b.groups(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

// MemberInput identifies a member to add. The pid is taken from PID, then
// ID, then Name.
type MemberInput struct {
	GroupID string
	PID     string
	ID      string
	Name    string
	Alias   string
}

// AddMember appends a member to a group's roster, creating the group when
// needed. Adding a pid that is already on the roster is a no-op.
func (s *Store) AddMember(ctx context.Context, in MemberInput) error {
	const op = "add member"
	groupID := model.CleanID(in.GroupID)
	if groupID == "" {
		return &model.ValidationError{Op: op, Field: "groupId"}
	}
	pid := model.CleanID(in.PID)
	if pid == "" {
		pid = in.ID
	}
	p, ok := model.NormalizePerson(model.Person{PID: pid, Name: in.Name, Alias: in.Alias})
	if !ok {
		return &model.ValidationError{Op: op, Field: "pid"}
	}
	return s.b.addMember(ctx, groupID, p)
}

// MembersByGroup returns the roster of one group in insertion order.
func (s *Store) MembersByGroup(ctx context.Context, groupID string) ([]model.Person, error) {
	return s.b.members(ctx, model.CleanID(groupID))
}

// WriteWeek normalizes and upserts a week, adding any new persons to the
// group roster in the same scope. A week without a save time keeps the one
// already stored under its key. It returns the week as stored.
func (s *Store) WriteWeek(ctx context.Context, w model.Week) (model.Week, error) {
	w, err := model.NormalizeWeek("write week", w)
	if err != nil {
		return model.Week{}, err
	}
	savedAt, err := s.b.putWeek(ctx, w, s.now().UTC())
	if err != nil {
		return model.Week{}, err
	}
	w.SavedAt = savedAt
	s.log.Debug("week written",
		zap.String("key", w.Key),
		zap.Int("persons", len(w.Persons)),
	)
	return w, nil
}

// GroupWeeks returns the weeks of one group sorted by week number.
func (s *Store) GroupWeeks(ctx context.Context, groupID string) ([]model.Week, error) {
	groupID = model.CleanID(groupID)
	if groupID == "" {
		return nil, &model.ValidationError{Op: "get weeks", Field: "groupId"}
	}
	weeks, err := s.b.weeks(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sortWeeks(weeks)
	return weeks, nil
}

// Weeks returns every week sorted by group and week number.
func (s *Store) Weeks(ctx context.Context) ([]model.Week, error) {
	weeks, err := s.b.weeks(ctx, "")
	if err != nil {
		return nil, err
	}
	sortWeeks(weeks)
	return weeks, nil
}

// ResetAll clears all collections.
func (s *Store) ResetAll(ctx context.Context) error {
	if err := s.b.reset(ctx); err != nil {
		return err
	}
	s.log.Info("store reset", zap.String("backend", string(s.b.kind())))
	return nil
}

// ExportJSON returns the canonical document for the whole store.
func (s *Store) ExportJSON(ctx context.Context) (interchange.Document, error) {
	snap, err := s.b.snapshot(ctx)
	if err != nil {
		return interchange.Document{}, err
	}
	return interchange.Export(snap, s.now()), nil
}

// ImportOptions controls ImportJSON.
type ImportOptions struct {
	// Overwrite clears every collection before inserting.
	Overwrite bool
}

// ImportResult summarizes an applied import.
type ImportResult struct {
	ID        string
	Format    interchange.Format
	Groups    int
	Weeks     int
	Settings  int
	Overwrite bool
}

// ImportJSON classifies and normalizes a canonical or legacy payload, then
// merges or replaces the store contents in one backend scope. Nothing is
// written when the payload is rejected.
func (s *Store) ImportJSON(ctx context.Context, data []byte, opts ImportOptions) (ImportResult, error) {
	snap, format, err := interchange.Parse(data)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{
		ID:        uuid.NewString(),
		Format:    format,
		Groups:    len(snap.Groups),
		Weeks:     len(snap.Weeks),
		Settings:  len(snap.Settings),
		Overwrite: opts.Overwrite,
	}
	if err := s.b.apply(ctx, snap, opts.Overwrite); err != nil {
		s.log.Error("import failed", zap.String("import_id", res.ID), zap.Error(err))
		return ImportResult{}, err
	}
	s.log.Info("import applied",
		zap.String("import_id", res.ID),
		zap.Stringer("format", format),
		zap.Int("groups", res.Groups),
		zap.Int("weeks", res.Weeks),
		zap.Int("settings", res.Settings),
		zap.Bool("overwrite", res.Overwrite),
	)
	return res, nil
}

// Settings returns every setting sorted by name.
func (s *Store) Settings(ctx context.Context) ([]model.Setting, error) {
	settings, err := s.b.settings(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	return settings, nil
}

// Setting returns one setting value and whether it exists.
func (s *Store) Setting(ctx context.Context, name string) (json.RawMessage, bool, error) {
	name = model.CleanID(name)
	settings, err := s.b.settings(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, st := range settings {
		if st.Name == name {
			return st.Value, true, nil
		}
	}
	return nil, false, nil
}

// PutSetting stores a JSON value under name.
func (s *Store) PutSetting(ctx context.Context, name string, value json.RawMessage) error {
	name = model.CleanID(name)
	if name == "" {
		return &model.ValidationError{Op: "put setting", Field: "name"}
	}
	compact, err := interchange.CompactValue(value)
	if err != nil {
		return &model.FormatError{Reason: "setting value is not valid JSON", Err: err}
	}
	return s.b.putSetting(ctx, model.Setting{Name: name, Value: compact})
}

// Mode returns the stored scoring mode, or fallback when none is stored.
func (s *Store) Mode(ctx context.Context, fallback string) (string, error) {
	raw, ok, err := s.Setting(ctx, model.SettingMode)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err != nil || mode == "" {
		return fallback, nil
	}
	return mode, nil
}

// SetMode stores the scoring mode.
func (s *Store) SetMode(ctx context.Context, mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != model.ModeStandard && mode != model.ModeStrict {
		return &model.ValidationError{Op: "set mode", Field: "mode", Msg: fmt.Sprintf("must be %s or %s", model.ModeStandard, model.ModeStrict)}
	}
	raw, err := json.Marshal(mode)
	if err != nil {
		return err
	}
	return s.PutSetting(ctx, model.SettingMode, raw)
}

// VerifySchema reports collections missing from the backend.
func (s *Store) VerifySchema(ctx context.Context) ([]string, error) {
	return s.b.missingCollections(ctx)
}

// storageErr passes domain errors through and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		verr *model.ValidationError
		ferr *model.FormatError
		serr *model.StorageError
	)
	if errors.As(err, &verr) || errors.As(err, &ferr) || errors.As(err, &serr) {
		return err
	}
	return &model.StorageError{Op: op, Err: err}
}
