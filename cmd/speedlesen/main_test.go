package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/speedlesen/internal/config"
	"github.com/verte-zerg/speedlesen/internal/logging"
	"github.com/verte-zerg/speedlesen/internal/model"
)

type cliEnv struct {
	dir  string
	base []string
}

func newCLIEnv(t *testing.T, backend string) cliEnv {
	t.Helper()
	dir := t.TempDir()
	prev := nowFunc
	nowFunc = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = prev })
	return cliEnv{
		dir: dir,
		base: []string{
			"--config", filepath.Join(dir, "config.toml"),
			"--backend", backend,
			"--db", filepath.Join(dir, "speedlesen.db"),
			"--snapshot", filepath.Join(dir, "speedlesen.json"),
		},
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append(append([]string{}, args...), e.base...))
	err := root.Execute()
	return out.String(), err
}

func (e cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "speedlesen %s", strings.Join(args, " "))
	return out
}

func (e cliEnv) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const weekOneSheet = `group: A
week: 1
coaching: true
readers:
  - pid: a1
    name: Ann
    woerter3: 150
    fehler: 2
  - pid: a2
    name: Ben
    woerter3: 120
`

const weekTwoSheet = `group: A
week: 2
readers:
  - pid: a1
    name: Ann
    woerter3: 165
    fehler: 1
  - pid: a2
    name: Ben
    woerter3: 120
`

func forEachCLIBackend(t *testing.T, fn func(t *testing.T, e cliEnv)) {
	for _, backend := range []string{"sqlite", "snapshot"} {
		t.Run(backend, func(t *testing.T) {
			fn(t, newCLIEnv(t, backend))
		})
	}
}

func TestWeekAddAndListings(t *testing.T) {
	forEachCLIBackend(t, func(t *testing.T, e cliEnv) {
		out := e.mustRun(t, "week", "add", "--file", e.writeFile(t, "w1.yaml", weekOneSheet))
		assert.Equal(t, "Saved A_W1 (standard mode): flags ..C., raw 2.0, normalized 2.00, cumulative 2.00, level Starter\n", out)

		out = e.mustRun(t, "week", "add", "-f", e.writeFile(t, "w2.yaml", weekTwoSheet))
		assert.Contains(t, out, "Saved A_W2")
		assert.Contains(t, out, "flags AB..")
		assert.Contains(t, out, "cumulative 7.00")

		assert.Equal(t, "a1\tAnn\na2\tBen\n", e.mustRun(t, "member", "list", "A"))
		assert.Equal(t, "A\t2 members\n", e.mustRun(t, "group", "list"))

		weeks := e.mustRun(t, "week", "list", "A")
		assert.Contains(t, weeks, "Weeks (A)")
		assert.Contains(t, weeks, "AB..")

		report := e.mustRun(t, "report", "A", "--width", "60")
		assert.Contains(t, report, "Group A: 7.0 points, level Starter")
		assert.Contains(t, report, "Points (A)")
		assert.Contains(t, report, "Readers (A)")
		assert.NotContains(t, report, "\x1b[")

		assert.Contains(t, e.mustRun(t, "report"), "Summary")
	})
}

func TestWeekAddStrictMode(t *testing.T) {
	e := newCLIEnv(t, "snapshot")
	assert.Equal(t, "standard\n", e.mustRun(t, "mode", "get"))
	e.mustRun(t, "mode", "set", "strikt")
	assert.Equal(t, "strikt\n", e.mustRun(t, "mode", "get"))

	out := e.mustRun(t, "week", "add", "--file", e.writeFile(t, "w1.yaml", weekOneSheet))
	assert.Contains(t, out, "(strikt mode): flags ..C., raw 0.0")

	_, err := e.run(t, "mode", "set", "lenient")
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)
}

func TestWeekAddRejectsBadSheet(t *testing.T) {
	e := newCLIEnv(t, "snapshot")
	_, err := e.run(t, "week", "add", "--file", e.writeFile(t, "bad.yaml", "group: A\nwoche: 1\n"))
	assert.Equal(t, exitBadInput, exitCode(err))

	_, err = e.run(t, "week", "add", "--file", e.writeFile(t, "nogroup.yaml", "week: 1\n"))
	assert.True(t, errors.Is(err, model.ErrValidation), "got %v", err)
}

func TestMemberAddAndGroupAdd(t *testing.T) {
	e := newCLIEnv(t, "sqlite")
	e.mustRun(t, "group", "add", "C")
	e.mustRun(t, "member", "add", "C", "c1", "--name", "Cleo", "--alias", "Clee")
	e.mustRun(t, "member", "add", "C", "c1", "--name", "Ignored")
	assert.Equal(t, "c1\tCleo\tClee\n", e.mustRun(t, "member", "list", "C"))
	assert.Equal(t, "No members found.\n", e.mustRun(t, "member", "list", "Z"))
}

func TestImportExportAndCSV(t *testing.T) {
	forEachCLIBackend(t, func(t *testing.T, e cliEnv) {
		legacy := e.writeFile(t, "legacy.json", `{
			"gruppen": [{"id": "B"}],
			"mitglieder": [{"id": "b1", "gruppe_id": "B", "name": "Bo"}],
			"messungen": [{"gruppe": "B", "woche": 1, "personen": [{"pid": "b1", "name": "Bo", "woerter3": 90, "wpm": 30, "fehler": 0, "wcpm": 30}]}]
		}`)
		out := e.mustRun(t, "import", legacy, "--overwrite")
		assert.Contains(t, out, "Imported legacy payload (replaced): 1 groups, 1 weeks, 0 settings")

		exportPath := filepath.Join(e.dir, "out", "export.json")
		e.mustRun(t, "export", "--out", exportPath)
		exported, err := os.ReadFile(exportPath)
		require.NoError(t, err)
		assert.Contains(t, string(exported), `"groupId": "B"`)
		assert.Contains(t, string(exported), `"exportedAt": "2024-05-06T07:08:09Z"`)

		out = e.mustRun(t, "import", exportPath)
		assert.Contains(t, out, "Imported canonical payload (merged)")

		csv := e.mustRun(t, "csv")
		lines := strings.Split(strings.TrimSpace(csv), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "Woche,Gruppe,Anzahl-Personen,Leser-Name"))
		assert.True(t, strings.HasPrefix(lines[1], "1,B,1,Bo,90,30,"))

		_, err = e.run(t, "import", e.writeFile(t, "junk.json", `{"foo": []}`))
		assert.Equal(t, exitBadInput, exitCode(err))
	})
}

func TestBackupCreateRestore(t *testing.T) {
	e := newCLIEnv(t, "sqlite")
	e.mustRun(t, "week", "add", "--file", e.writeFile(t, "w1.yaml", weekOneSheet))

	path := filepath.Join(e.dir, "backup.json")
	out := e.mustRun(t, "backup", "create", "--out", path)
	assert.Contains(t, out, "Wrote "+path)

	_, err := e.run(t, "reset")
	require.Error(t, err)
	e.mustRun(t, "reset", "--yes")
	assert.Equal(t, "No groups found.\n", e.mustRun(t, "group", "list"))

	out = e.mustRun(t, "backup", "restore", path)
	assert.Contains(t, out, "Verified backup exported at 2024-05-06T07:08:09Z")
	assert.Equal(t, "A\t2 members\n", e.mustRun(t, "group", "list"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := e.writeFile(t, "tampered.json", strings.Replace(string(raw), `"wpm": 50`, `"wpm": 55`, 1))
	_, err = e.run(t, "backup", "restore", tampered)
	assert.Equal(t, exitIntegrity, exitCode(err))
}

func TestSchemaCommand(t *testing.T) {
	forEachCLIBackend(t, func(t *testing.T, e cliEnv) {
		out := e.mustRun(t, "schema")
		assert.Equal(t, fmt.Sprintf("Schema OK (%s backend)\n", e.base[3]), out)
	})
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "from-config.json")
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`[store]
backend = "snapshot"
snapshot = %q

[scoring]
mode = "strikt"
`, snapshot)), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"mode", "get", "--config", cfgPath, "--db", filepath.Join(dir, "unused.db")})
	require.NoError(t, root.Execute())
	assert.Equal(t, "strikt\n", out.String())
	_, err := os.Stat(snapshot)
	assert.NoError(t, err, "snapshot backend from config should create its file")

	root = newRootCmd()
	out.Reset()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"mode", "get", "--config", cfgPath, "--mode", "standard"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "standard\n", out.String())
}

func TestConfigFileRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[store]\nbakend = \"sqlite\"\n"), 0o644))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"group", "list", "--config", cfgPath})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.bakend")
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&model.ValidationError{Field: "id"}, exitBadInput},
		{fmt.Errorf("wrapped: %w", &model.FormatError{Reason: "x"}), exitBadInput},
		{&model.IntegrityError{Expected: "a", Actual: "b"}, exitIntegrity},
		{&model.StorageError{Op: "open", Err: errors.New("boom")}, exitFailure},
		{errors.New("other"), exitFailure},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, exitCode(tc.err), "%v", tc.err)
	}
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Store.Backend, "template values are commented out")
}

func TestLogFlagDefaultsMatchLoggingPackage(t *testing.T) {
	root := newRootCmd()
	want := logging.DefaultConfig()
	assert.Equal(t, want.Level, root.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, want.Format, root.PersistentFlags().Lookup("log-format").DefValue)
	assert.Contains(t, defaultConfigTemplate(), fmt.Sprintf("# level = %q", want.Level))
}
