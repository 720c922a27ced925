// Package backup wraps an export in a self-verifying envelope.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verte-zerg/speedlesen/internal/interchange"
	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/store"
)

// FormatTag identifies the envelope layout.
const FormatTag = "speedlesen.backup.v1"

// Envelope is a backup file. Data holds the export exactly as hashed.
type Envelope struct {
	Format     string          `json:"format"`
	DBVersion  int             `json:"dbVersion"`
	ExportedAt string          `json:"exportedAt"`
	Hash       string          `json:"hash"`
	Data       json.RawMessage `json:"data"`
}

// Exporter produces the document to back up.
type Exporter interface {
	ExportJSON(ctx context.Context) (interchange.Document, error)
}

// Importer applies a verified payload.
type Importer interface {
	ImportJSON(ctx context.Context, data []byte, opts store.ImportOptions) (store.ImportResult, error)
}

// Create exports the store and seals it in an envelope stamped with now.
func Create(ctx context.Context, exp Exporter, now time.Time) (Envelope, error) {
	doc, err := exp.ExportJSON(ctx)
	if err != nil {
		return Envelope{}, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode export: %w", err)
	}
	return Envelope{
		Format:     FormatTag,
		DBVersion:  doc.Version,
		ExportedAt: now.UTC().Format(time.RFC3339Nano),
		Hash:       Digest(data),
		Data:       data,
	}, nil
}

// Digest is the hex SHA-256 of the compacted JSON value. Whitespace changes
// from pretty-printing do not alter it.
func Digest(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		buf.Reset()
		buf.Write(data)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// Parse decodes an envelope and verifies its digest.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &model.FormatError{Reason: "backup is not a JSON object", Err: err}
	}
	if env.Format != FormatTag {
		return Envelope{}, &model.FormatError{Reason: fmt.Sprintf("unsupported backup format %q", env.Format)}
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, &model.FormatError{Reason: "backup has no data"}
	}
	if env.Hash == "" {
		return Envelope{}, &model.FormatError{Reason: "backup has no hash"}
	}
	if actual := Digest(data); actual != env.Hash {
		return Envelope{}, &model.IntegrityError{Expected: env.Hash, Actual: actual}
	}
	env.Data = data
	return env, nil
}

// Restore verifies raw and imports its data. Nothing is written when
// verification fails.
func Restore(ctx context.Context, imp Importer, raw []byte, overwrite bool) (Envelope, store.ImportResult, error) {
	env, err := Parse(raw)
	if err != nil {
		return Envelope{}, store.ImportResult{}, err
	}
	res, err := imp.ImportJSON(ctx, env.Data, store.ImportOptions{Overwrite: overwrite})
	if err != nil {
		return Envelope{}, store.ImportResult{}, err
	}
	return env, res, nil
}

// Marshal renders an envelope for writing to disk.
func Marshal(env Envelope) ([]byte, error) {
	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// FileName is the default backup file name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("speedlesen_%s_backup.json", t.UTC().Format("20060102T150405"))
}
