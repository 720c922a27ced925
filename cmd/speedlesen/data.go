package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/speedlesen/internal/backup"
	"github.com/verte-zerg/speedlesen/internal/config"
	"github.com/verte-zerg/speedlesen/internal/csvexport"
	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/store"
)

var (
	exportOut string

	importOverwrite bool

	backupOut       string
	backupOverwrite bool

	csvOut   string
	csvGroup string

	resetYes bool
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all data as canonical JSON",
		Args:  cobra.NoArgs,
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file (- for stdout)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	doc, err := st.ExportJSON(cmd.Context())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), exportOut, append(data, '\n'))
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a canonical or legacy JSON export",
		Long: `Import a canonical or legacy JSON export.

By default records are merged by natural key and unrelated data is kept.
With --overwrite every collection is cleared first. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCmd,
	}
	cmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace all stored data")
	return cmd
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := st.ImportJSON(cmd.Context(), data, store.ImportOptions{Overwrite: importOverwrite})
	if err != nil {
		return err
	}
	return printImportResult(cmd.OutOrStdout(), res)
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create or restore verified backups",
	}
	create := &cobra.Command{
		Use:   "create",
		Short: "Write a hashed backup file",
		Args:  cobra.NoArgs,
		RunE:  runBackupCreateCmd,
	}
	create.Flags().StringVarP(&backupOut, "out", "o", "", "backup file (default: timestamped file in the data dir)")
	restore := &cobra.Command{
		Use:   "restore <file>",
		Short: "Verify a backup file and import it",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupRestoreCmd,
	}
	restore.Flags().BoolVar(&backupOverwrite, "overwrite", true, "replace all stored data")
	cmd.AddCommand(create, restore)
	return cmd
}

func runBackupCreateCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	now := nowFunc()
	env, err := backup.Create(cmd.Context(), st, now)
	if err != nil {
		return err
	}
	data, err := backup.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	path := backupOut
	if path == "" {
		path = filepath.Join(config.DefaultBackupDir(), backup.FileName(now))
	}
	if err := writeOutput(cmd.OutOrStdout(), path, data); err != nil {
		return err
	}
	if path == "-" {
		return nil
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (sha256 %s)\n", path, env.Hash)
	return err
}

func runBackupRestoreCmd(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	env, res, err := backup.Restore(cmd.Context(), st, raw, backupOverwrite)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Verified backup exported at %s\n", env.ExportedAt); err != nil {
		return err
	}
	return printImportResult(cmd.OutOrStdout(), res)
}

func newCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Write weekly results as CSV, one row per reader",
		Args:  cobra.NoArgs,
		RunE:  runCSVCmd,
	}
	cmd.Flags().StringVarP(&csvOut, "out", "o", "-", "output file (- for stdout)")
	cmd.Flags().StringVar(&csvGroup, "group", "", "limit to one group")
	return cmd
}

func runCSVCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	st, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	groups, err := st.Groups(ctx)
	if err != nil {
		return err
	}
	var weeks []model.Week
	if csvGroup != "" {
		weeks, err = st.GroupWeeks(ctx, csvGroup)
	} else {
		weeks, err = st.Weeks(ctx)
	}
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := csvexport.Write(&buf, csvexport.Rows(groups, weeks)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), csvOut, buf.Bytes())
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Check that every collection exists in the store",
		Args:  cobra.NoArgs,
		RunE:  runSchemaCmd,
	}
}

func runSchemaCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	missing, err := st.VerifySchema(cmd.Context())
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &model.StorageError{
			Op:  "verify schema",
			Err: fmt.Errorf("missing collections: %s", strings.Join(missing, ", ")),
		}
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Schema OK (%s backend)\n", st.Backend())
	return err
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all groups, weeks and settings",
		Args:  cobra.NoArgs,
		RunE:  runResetCmd,
	}
	cmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
	return cmd
}

func runResetCmd(cmd *cobra.Command, _ []string) error {
	if !resetYes {
		return fmt.Errorf("reset deletes all data; rerun with --yes to confirm")
	}
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := st.ResetAll(cmd.Context()); err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "All data deleted.")
	return err
}

func printImportResult(w io.Writer, res store.ImportResult) error {
	mode := "merged"
	if res.Overwrite {
		mode = "replaced"
	}
	_, err := fmt.Fprintf(w, "Imported %s payload (%s): %d groups, %d weeks, %d settings [%s]\n",
		res.Format, mode, res.Groups, res.Weeks, res.Settings, res.ID)
	return err
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to stdout when path is "-", otherwise replaces
// path atomically.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
