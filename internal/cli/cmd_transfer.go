package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/spf13/cobra"
)

func newExportCommand(deps commandDeps) *cobra.Command {
	var (
		format     string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every collection as one snapshot document",
		Example: "  qrc export --output backup.json\n" +
			"  qrc export --format yaml --output -",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("export does not accept positional arguments")
			}
			if strings.TrimSpace(outputPath) == "" {
				return usageErrorf("export requires --output (use - for stdout)")
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				snapFormat, err := resolveSnapshotFormat(format, sess.cfg.Export.Format, outputPath)
				if err != nil {
					return err
				}
				snap, err := sess.store.ExportAll(ctx)
				if err != nil {
					return err
				}

				if outputPath == "-" {
					return store.EncodeSnapshot(deps.out, snap, snapFormat)
				}
				if err := writeSnapshotFile(outputPath, snap, snapFormat); err != nil {
					return err
				}

				payload := map[string]any{
					"output":          outputPath,
					"format":          string(snapFormat),
					"trades":          len(snap.Trades),
					"portfolios":      len(snap.Portfolios),
					"accounts":        len(snap.Accounts),
					"journal_entries": len(snap.JournalEntries),
					"users":           len(snap.Users),
					"ai_sessions":     len(snap.AISessions),
					"ai_strategies":   len(snap.AIStrategies),
					"settings":        len(snap.Settings),
				}
				return printResult(deps, payload, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "exported %d trades, %d accounts, %d journal entries to %s\n",
						len(snap.Trades), len(snap.Accounts), len(snap.JournalEntries), outputPath)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Snapshot format: json or yaml (default from config or file extension)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path, or - for stdout")
	return cmd
}

func newImportCommand(deps commandDeps) *cobra.Command {
	var (
		format     string
		fromPath   string
		onConflict string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a snapshot produced by export",
		Example: "  qrc import --from backup.json\n" +
			"  qrc import --from backup.yaml --on-conflict overwrite",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("import does not accept positional arguments")
			}
			if strings.TrimSpace(fromPath) == "" {
				return usageErrorf("import requires --from")
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				snapFormat, err := resolveSnapshotFormat(format, sess.cfg.Export.Format, fromPath)
				if err != nil {
					return err
				}
				mode := onConflict
				if strings.TrimSpace(mode) == "" {
					mode = sess.cfg.Export.OnConflict
				}
				conflict, err := store.ParseConflictMode(mode)
				if err != nil {
					return usageErrorf("import: %v", err)
				}

				snap, err := readSnapshot(cmd.InOrStdin(), fromPath, snapFormat)
				if err != nil {
					return err
				}
				result, err := sess.store.ImportAll(ctx, snap, store.ImportOptions{OnConflict: conflict})
				if err != nil {
					return err
				}

				total := result.Total()
				return printResult(deps, result, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "imported created=%d updated=%d skipped=%d\n", total.Created, total.Updated, total.Skipped)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Snapshot format: json or yaml (default from config or file extension)")
	cmd.Flags().StringVar(&fromPath, "from", "", "Input path, or - for stdin")
	cmd.Flags().StringVar(&onConflict, "on-conflict", "", "Existing id handling: fail, skip, overwrite or rename")
	return cmd
}

func newClearCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every document from every collection",
		Example: "  qrc clear --yes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("clear does not accept positional arguments")
			}
			if !deps.globals.Yes {
				ok, err := confirm(cmd.InOrStdin(), deps.out, "delete all trades, accounts, journal entries and settings?")
				if err != nil {
					return mapCommandError(err)
				}
				if !ok {
					return usageErrorf("clear aborted (pass --yes to skip the prompt)")
				}
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.ClearAll(ctx); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"cleared": true}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "cleared all collections")
					return err
				})
			})
		},
	}
}

// resolveSnapshotFormat picks the explicit flag, then the file extension, then
// the configured default.
func resolveSnapshotFormat(flagValue, configured, path string) (store.SnapshotFormat, error) {
	raw := strings.TrimSpace(flagValue)
	if raw == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			raw = string(store.FormatYAML)
		case ".json":
			raw = string(store.FormatJSON)
		default:
			raw = configured
		}
	}
	format, err := store.ParseSnapshotFormat(raw)
	if err != nil {
		return "", usageErrorf("%v", err)
	}
	return format, nil
}

func writeSnapshotFile(path string, snap *store.Snapshot, format store.SnapshotFormat) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("export: create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("export: open output: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := store.EncodeSnapshot(w, snap, format); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close output: %w", err)
	}
	return nil
}

func readSnapshot(stdin io.Reader, path string, format store.SnapshotFormat) (*store.Snapshot, error) {
	if path == "-" {
		return store.DecodeSnapshot(stdin, format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import: open input: %w", err)
	}
	defer f.Close()
	return store.DecodeSnapshot(bufio.NewReader(f), format)
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
