// Package main provides the CLI entrypoint for speedlesen.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verte-zerg/speedlesen/internal/config"
	"github.com/verte-zerg/speedlesen/internal/logging"
	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/store"
)

const (
	defaultBackend = "auto"
	defaultMode    = model.ModeStandard
)

const (
	exitFailure   = 1
	exitBadInput  = 2
	exitIntegrity = 3
)

var (
	configPath   string
	storeBackend string
	storePath    string
	snapshotPath string
	scoringMode  string
	logLevel     string
	logFormat    string

	// set by the root pre-run hook
	appLogger = zap.NewNop()
	nowFunc   = time.Now
)

func main() {
	rootCmd := newRootCmd()
	err := rootCmd.Execute()
	_ = logging.Sync(appLogger)
	if err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "speedlesen",
		Short:             "Reading-speed tracker for reading groups",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupRuntime,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	flags.StringVar(&storeBackend, "backend", defaultBackend, "storage backend: auto, sqlite or snapshot")
	flags.StringVar(&storePath, "db", config.DefaultDBPath(), "sqlite database file")
	flags.StringVar(&snapshotPath, "snapshot", config.DefaultSnapshotPath(), "snapshot file used by the snapshot backend")
	flags.StringVar(&scoringMode, "mode", defaultMode, "scoring mode used when none is stored")
	logDefaults := logging.DefaultConfig()
	flags.StringVar(&logLevel, "log-level", logDefaults.Level, "diagnostic log level")
	flags.StringVar(&logFormat, "log-format", logDefaults.Format, "diagnostic log format: console or json")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGroupCmd())
	rootCmd.AddCommand(newMemberCmd())
	rootCmd.AddCommand(newWeekCmd())
	rootCmd.AddCommand(newModeCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newCSVCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newBoardCmd())
	rootCmd.AddCommand(newSchemaCmd())
	rootCmd.AddCommand(newResetCmd())

	return rootCmd
}

// setupRuntime applies the config file to flags left at their defaults and
// builds the diagnostic logger.
func setupRuntime(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "backend", &storeBackend, fileCfg.Store.Backend)
	applyStringConfig(cmd, "db", &storePath, fileCfg.Store.Path)
	applyStringConfig(cmd, "snapshot", &snapshotPath, fileCfg.Store.Snapshot)
	applyStringConfig(cmd, "mode", &scoringMode, fileCfg.Scoring.Mode)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)

	if scoringMode != model.ModeStandard && scoringMode != model.ModeStrict {
		return &model.ValidationError{Field: "mode", Msg: fmt.Sprintf("must be %q or %q", model.ModeStandard, model.ModeStrict)}
	}

	log, err := logging.New(logging.Config{Level: logLevel, Format: logFormat}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	appLogger = log
	return nil
}

// openStore opens the configured backend. The caller must call the returned
// close function.
func openStore(ctx context.Context) (*store.Store, func(), error) {
	kind, err := store.ParseBackendKind(storeBackend)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Backend:      kind,
		Path:         storePath,
		SnapshotPath: snapshotPath,
		Logger:       appLogger,
		Now:          nowFunc,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}
	closeFn := func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close store: %v\n", cerr)
		}
	}
	return st, closeFn, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# speedlesen configuration
# Uncomment a value to enable it. CLI flags override config values.

[store]
# backend = %q        # auto, sqlite or snapshot
# path = %q
# snapshot = %q

[scoring]
# mode = %q       # standard or strikt; used until a mode is stored

[log]
# level = %q          # debug, info, warn or error
# format = %q      # console or json
`,
		defaultBackend,
		config.DefaultDBPath(),
		config.DefaultSnapshotPath(),
		defaultMode,
		logging.DefaultConfig().Level,
		logging.DefaultConfig().Format,
	)
}

// exitCode maps domain errors to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, model.ErrIntegrity):
		return exitIntegrity
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrFormat):
		return exitBadInput
	default:
		return exitFailure
	}
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
