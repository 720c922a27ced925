package backup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/store"
)

var now = time.Date(2024, 9, 1, 8, 30, 15, 0, time.UTC)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{
		Backend: store.BackendSnapshot,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seeded(t *testing.T) *store.Store {
	t.Helper()
	s := newStore(t)
	_, err := s.WriteWeek(context.Background(), model.Week{
		GroupID:    "A",
		WeekNumber: 1,
		Persons:    []model.PersonMeasurement{{PID: "a1", Name: "Ann <3", WPM: 50}},
	})
	require.NoError(t, err)
	return s
}

func TestCreateAndRestore(t *testing.T) {
	ctx := context.Background()
	src := seeded(t)

	env, err := Create(ctx, src, now)
	require.NoError(t, err)
	assert.Equal(t, FormatTag, env.Format)
	assert.Equal(t, 2, env.DBVersion)
	assert.Equal(t, "2024-09-01T08:30:15Z", env.ExportedAt)
	assert.Len(t, env.Hash, 64)

	raw, err := Marshal(env)
	require.NoError(t, err)

	dst := newStore(t)
	got, res, err := Restore(ctx, dst, raw, true)
	require.NoError(t, err)
	assert.Equal(t, env.Hash, got.Hash)
	assert.Equal(t, 1, res.Weeks)

	want, err := src.ExportJSON(ctx)
	require.NoError(t, err)
	have, err := dst.ExportJSON(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestParseRejectsTamperedData(t *testing.T) {
	ctx := context.Background()
	env, err := Create(ctx, seeded(t), now)
	require.NoError(t, err)
	raw, err := Marshal(env)
	require.NoError(t, err)

	tampered := bytes.Replace(raw, []byte(`"wpm": 50`), []byte(`"wpm": 51`), 1)
	require.NotEqual(t, raw, tampered)

	dst := newStore(t)
	_, _, err = Restore(ctx, dst, tampered, true)
	var ierr *model.IntegrityError
	require.True(t, errors.As(err, &ierr), "got %v", err)
	assert.Equal(t, env.Hash, ierr.Expected)
	assert.True(t, errors.Is(err, model.ErrIntegrity))

	groups, err := dst.Groups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestParseRejectsBadEnvelope(t *testing.T) {
	cases := map[string]string{
		"not json":    `nope`,
		"wrong tag":   `{"format": "other", "hash": "x", "data": {}}`,
		"no data":     `{"format": "speedlesen.backup.v1", "hash": "x"}`,
		"null data":   `{"format": "speedlesen.backup.v1", "hash": "x", "data": null}`,
		"no hash":     `{"format": "speedlesen.backup.v1", "data": {"groups": []}}`,
		"array input": `[]`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(in))
			assert.True(t, errors.Is(err, model.ErrFormat), "got %v", err)
		})
	}
}

func TestDigestIgnoresWhitespace(t *testing.T) {
	assert.Equal(t, Digest([]byte(`{"a":[1,2]}`)), Digest([]byte("{\n  \"a\": [1, 2]\n}")))
	assert.NotEqual(t, Digest([]byte(`{"a":[1,2]}`)), Digest([]byte(`{"a":[2,1]}`)))
}

func TestRestoreRejectsUnknownPayload(t *testing.T) {
	data := []byte(`{"foo":[]}`)
	raw := []byte(`{"format":"speedlesen.backup.v1","hash":"` + Digest(data) + `","data":{"foo":[]}}`)
	_, _, err := Restore(context.Background(), newStore(t), raw, false)
	assert.True(t, errors.Is(err, model.ErrFormat), "got %v", err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "speedlesen_20240901T083015_backup.json", FileName(now))
}
