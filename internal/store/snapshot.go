package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/verte-zerg/speedlesen/internal/interchange"
	"github.com/verte-zerg/speedlesen/internal/model"
)

// snapshotBackend keeps every collection in memory and rewrites one JSON
// document after each mutation. Mutations run on a copy of the state which
// replaces the live state only after the file is written, so a failed write
// leaves readers on the previous state.
type snapshotBackend struct {
	mu    sync.RWMutex
	path  string
	now   func() time.Time
	state *snapshotState
}

var _ backend = (*snapshotBackend)(nil)

type snapshotState struct {
	groups   []model.Group
	weeks    map[string]model.Week
	settings map[string]json.RawMessage
}

func newSnapshotState() *snapshotState {
	return &snapshotState{
		weeks:    map[string]model.Week{},
		settings: map[string]json.RawMessage{},
	}
}

// openSnapshot loads the snapshot at path, creating it when absent. An empty
// path keeps the state in memory only.
func openSnapshot(path string, now func() time.Time) (*snapshotBackend, error) {
	b := &snapshotBackend{path: path, now: now, state: newSnapshotState()}
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := b.persist(b.state); err != nil {
			return nil, err
		}
		return b, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snap, _, err := interchange.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", path, err)
	}
	b.state.apply(snap)
	return b, nil
}

func (b *snapshotBackend) kind() BackendKind { return BackendSnapshot }

func (b *snapshotBackend) close() error { return nil }

// mutate applies fn to a copy of the state, persists the copy and swaps it in.
func (b *snapshotBackend) mutate(op string, fn func(s *snapshotState)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.state.clone()
	fn(next)
	if err := b.persist(next); err != nil {
		return &model.StorageError{Op: op, Err: err}
	}
	b.state = next
	return nil
}

func (b *snapshotBackend) read(fn func(s *snapshotState)) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn(b.state)
}

func (b *snapshotBackend) persist(s *snapshotState) error {
	if b.path == "" {
		return nil
	}
	doc := interchange.Export(s.snapshot(), b.now())
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(b.path, append(data, '\n'))
}

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, creating the parent directory when needed.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (b *snapshotBackend) putGroup(_ context.Context, g model.Group) error {
	return b.mutate("add group", func(s *snapshotState) {
		s.putGroup(g)
	})
}

func (b *snapshotBackend) addMember(_ context.Context, groupID string, p model.Person) error {
	return b.mutate("add member", func(s *snapshotState) {
		i := s.ensureGroup(groupID)
		for _, m := range s.groups[i].Members {
			if m.PID == p.PID {
				return
			}
		}
		s.groups[i].Members = append(s.groups[i].Members, p)
	})
}

func (b *snapshotBackend) groups(context.Context) ([]model.Group, error) {
	var out []model.Group
	b.read(func(s *snapshotState) {
		out = s.snapshot().Groups
	})
	return out, nil
}

func (b *snapshotBackend) members(_ context.Context, groupID string) ([]model.Person, error) {
	var out []model.Person
	b.read(func(s *snapshotState) {
		if i := s.findGroup(groupID); i >= 0 {
			out = append(out, s.groups[i].Members...)
		}
	})
	return out, nil
}

func (b *snapshotBackend) putWeek(_ context.Context, w model.Week, now time.Time) (time.Time, error) {
	err := b.mutate("write week", func(s *snapshotState) {
		if w.SavedAt.IsZero() {
			w.SavedAt = s.weeks[w.Key].SavedAt
			if w.SavedAt.IsZero() {
				w.SavedAt = now
			}
		}
		s.putWeek(w)
	})
	return w.SavedAt, err
}

func (b *snapshotBackend) weeks(_ context.Context, groupID string) ([]model.Week, error) {
	var out []model.Week
	b.read(func(s *snapshotState) {
		for _, w := range s.snapshot().Weeks {
			if groupID == "" || w.GroupID == groupID {
				out = append(out, w)
			}
		}
	})
	return out, nil
}

func (b *snapshotBackend) putSetting(_ context.Context, setting model.Setting) error {
	return b.mutate("put setting", func(s *snapshotState) {
		s.settings[setting.Name] = setting.Value
	})
}

func (b *snapshotBackend) settings(context.Context) ([]model.Setting, error) {
	var out []model.Setting
	b.read(func(s *snapshotState) {
		out = s.snapshot().Settings
	})
	return out, nil
}

func (b *snapshotBackend) reset(context.Context) error {
	return b.mutate("reset", func(s *snapshotState) {
		*s = *newSnapshotState()
	})
}

func (b *snapshotBackend) snapshot(context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	b.read(func(s *snapshotState) {
		snap = s.snapshot()
	})
	return snap, nil
}

func (b *snapshotBackend) apply(_ context.Context, snap model.Snapshot, overwrite bool) error {
	return b.mutate("import", func(s *snapshotState) {
		if overwrite {
			*s = *newSnapshotState()
		}
		s.apply(snap)
	})
}

// missingCollections reads the snapshot file back and reports top-level
// collection keys that are absent.
func (b *snapshotBackend) missingCollections(context.Context) ([]string, error) {
	if b.path == "" {
		return nil, nil
	}
	b.mu.RLock()
	data, err := os.ReadFile(b.path)
	b.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return Collections(), nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "verify schema", Err: err}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &model.FormatError{Reason: "snapshot is not a JSON object", Err: err}
	}
	var missing []string
	for _, name := range Collections() {
		raw := bytes.TrimSpace(top[name])
		if len(raw) == 0 || raw[0] != '[' {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (s *snapshotState) clone() *snapshotState {
	out := &snapshotState{
		groups:   make([]model.Group, len(s.groups)),
		weeks:    make(map[string]model.Week, len(s.weeks)),
		settings: make(map[string]json.RawMessage, len(s.settings)),
	}
	for i, g := range s.groups {
		out.groups[i] = model.Group{ID: g.ID, Members: append([]model.Person(nil), g.Members...)}
	}
	for k, w := range s.weeks {
		w.Persons = append([]model.PersonMeasurement(nil), w.Persons...)
		out.weeks[k] = w
	}
	for k, v := range s.settings {
		out.settings[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func (s *snapshotState) findGroup(id string) int {
	for i, g := range s.groups {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (s *snapshotState) ensureGroup(id string) int {
	if i := s.findGroup(id); i >= 0 {
		return i
	}
	s.groups = append(s.groups, model.Group{ID: id})
	return len(s.groups) - 1
}

func (s *snapshotState) putGroup(g model.Group) {
	i := s.ensureGroup(g.ID)
	s.groups[i].Members = upsertMembers(s.groups[i].Members, g.Members)
}

func (s *snapshotState) putWeek(w model.Week) {
	i := s.ensureGroup(w.GroupID)
	s.weeks[w.Key] = w
	s.groups[i].Members = append(s.groups[i].Members, reconcileRoster(s.groups[i].Members, w.Persons)...)
}

func (s *snapshotState) apply(snap model.Snapshot) {
	for _, g := range snap.Groups {
		s.putGroup(g)
	}
	for _, w := range snap.Weeks {
		s.putWeek(w)
	}
	for _, setting := range snap.Settings {
		s.settings[setting.Name] = setting.Value
	}
}

// snapshot returns a sorted deep copy of the state.
func (s *snapshotState) snapshot() model.Snapshot {
	c := s.clone()
	snap := model.Snapshot{Groups: c.groups}
	sort.SliceStable(snap.Groups, func(i, j int) bool { return snap.Groups[i].ID < snap.Groups[j].ID })
	for _, w := range c.weeks {
		snap.Weeks = append(snap.Weeks, w)
	}
	sortWeeks(snap.Weeks)
	for name, value := range c.settings {
		snap.Settings = append(snap.Settings, model.Setting{Name: name, Value: value})
	}
	sort.Slice(snap.Settings, func(i, j int) bool { return snap.Settings[i].Name < snap.Settings[j].Name })
	return snap
}

func sortWeeks(weeks []model.Week) {
	sort.SliceStable(weeks, func(i, j int) bool {
		if weeks[i].GroupID == weeks[j].GroupID {
			return weeks[i].WeekNumber < weeks[j].WeekNumber
		}
		return weeks[i].GroupID < weeks[j].GroupID
	})
}
