package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/debug"
	"github.com/spf13/cobra"
)

func newDebugCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Diagnostics for bug reports",
	}
	cmd.AddCommand(newDebugBundleCommand(deps))
	return cmd
}

func newDebugBundleCommand(deps commandDeps) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Write a diagnostics bundle without any journal contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("debug bundle does not accept positional arguments")
			}
			if strings.TrimSpace(outputPath) == "" {
				return usageErrorf("debug bundle requires --output")
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				bundle := debug.NewBundle()
				bundle.Version = map[string]any{
					"version":    deps.build.Version,
					"commit":     deps.build.Commit,
					"build_time": deps.build.BuildTime,
				}
				bundle.Config = map[string]any{
					"busy_timeout": sess.cfg.Storage.BusyTimeout.String(),
					"id_scheme":    sess.cfg.Storage.IDScheme,
					"log_level":    sess.cfg.Logging.Level,
					"log_format":   sess.cfg.Logging.Format,
					"log_to_file":  sess.cfg.Logging.File != "",
				}
				info, err := storeInfo(ctx, sess)
				if err != nil {
					bundle.Notes = append(bundle.Notes, "store info unavailable: "+err.Error())
				} else {
					bundle.Store = info
				}
				bundle.Checks = runChecks(ctx, sess)

				if err := debug.WriteBundle(outputPath, bundle); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"output": outputPath, "healthy": bundle.Healthy()}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "wrote debug bundle: %s\n", outputPath)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Bundle output path")
	return cmd
}
