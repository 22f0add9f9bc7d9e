package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/debug"
	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/spf13/cobra"
)

func newStatusCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database location, schema version and document counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("status does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				info, err := storeInfo(ctx, sess)
				if err != nil {
					return err
				}

				payload := map[string]any{
					"db_path":        info.Path,
					"size_bytes":     info.SizeBytes,
					"schema_version": info.SchemaVersion,
					"counts":         info.Collections,
				}
				return printResult(deps, payload, func(w io.Writer) error {
					if _, err := fmt.Fprintf(w, "db=%s schema=v%d size=%d\n", info.Path, info.SchemaVersion, info.SizeBytes); err != nil {
						return err
					}
					for _, name := range sess.store.Engine().Collections() {
						if _, err := fmt.Fprintf(w, "%-16s %d\n", name, info.Collections[name]); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newDoctorCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, database integrity and schema health",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("doctor does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				checks := runChecks(ctx, sess)
				healthy := debug.Bundle{Checks: checks}.Healthy()

				err := printResult(deps, map[string]any{"healthy": healthy, "checks": checks}, func(w io.Writer) error {
					for _, check := range checks {
						state := "ok"
						if !check.OK {
							state = "FAIL"
						}
						if _, err := fmt.Fprintf(w, "%-10s %-4s %s\n", check.Name, state, check.Message); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					return err
				}
				if !healthy {
					return &ExitError{Code: ExitCodeGeneric, Err: errors.New("doctor found problems")}
				}
				return nil
			})
		},
	}
}

func runChecks(ctx context.Context, sess session) []debug.Check {
	checks := []debug.Check{{Name: "config", OK: true, Message: "loaded"}}

	expected := store.Schema().Version()
	version, err := sess.store.Engine().SchemaVersion(ctx)
	if err != nil {
		checks = append(checks, debug.Check{Name: "schema", OK: false, Message: err.Error()})
	} else {
		checks = append(checks, debug.Check{
			Name:    "schema",
			OK:      version == expected,
			Message: fmt.Sprintf("v%d (expected v%d)", version, expected),
		})
	}

	problems, err := sess.store.Engine().IntegrityCheck(ctx)
	switch {
	case err != nil:
		checks = append(checks, debug.Check{Name: "integrity", OK: false, Message: err.Error()})
	case len(problems) > 0:
		checks = append(checks, debug.Check{Name: "integrity", OK: false, Message: strings.Join(problems, "; ")})
	default:
		checks = append(checks, debug.Check{Name: "integrity", OK: true, Message: "ok"})
	}
	return checks
}

func storeInfo(ctx context.Context, sess session) (*debug.StoreInfo, error) {
	version, err := sess.store.Engine().SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := sess.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &debug.StoreInfo{
		Path:          sess.cfg.Storage.Path,
		SizeBytes:     debug.FileSize(sess.cfg.Storage.Path),
		SchemaVersion: version,
		Collections:   counts,
	}, nil
}
