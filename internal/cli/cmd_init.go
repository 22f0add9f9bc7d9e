package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/config"
	"github.com/spf13/cobra"
)

const defaultInitConfig = `[storage]
busy_timeout = "5s"
id_scheme = "uuid"

[logging]
level = "info"
format = "text"
file = ""
max_size_mb = 10
max_files = 5

[export]
format = "json"
on_conflict = "fail"
`

func newInitCommand(deps commandDeps) *cobra.Command {
	var writeConfig bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and apply migrations",
		Example: "  qrc init\n" +
			"  qrc --db ./journal.db init --write-config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("init does not accept positional arguments")
			}

			configPath := ""
			if writeConfig {
				path, err := resolveInitConfigPath(deps)
				if err != nil {
					return mapCommandError(err)
				}
				if err := writeDefaultConfig(path, deps.globals.Yes); err != nil {
					return mapCommandError(err)
				}
				configPath = path
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				version, err := sess.store.Engine().SchemaVersion(ctx)
				if err != nil {
					return err
				}
				payload := map[string]any{
					"initialized":    true,
					"db_path":        sess.cfg.Storage.Path,
					"schema_version": version,
				}
				if configPath != "" {
					payload["config_path"] = configPath
				}
				return printResult(deps, payload, func(w io.Writer) error {
					if _, err := fmt.Fprintf(w, "initialized store: %s (schema v%d)\n", sess.cfg.Storage.Path, version); err != nil {
						return err
					}
					if configPath != "" {
						_, err := fmt.Fprintf(w, "wrote config: %s\n", configPath)
						return err
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&writeConfig, "write-config", false, "Also write a default config file (kept unless --yes)")
	return cmd
}

func resolveInitConfigPath(deps commandDeps) (string, error) {
	path, err := config.Path(config.LoadOptions{ConfigPath: strings.TrimSpace(deps.globals.ConfigPath)})
	if err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

func writeDefaultConfig(path string, overwrite bool) error {
	if strings.TrimSpace(path) == "" {
		return usageErrorf("init: config path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("init: create config directory: %w", err)
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("init: stat config path: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultInitConfig), 0o600); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}
	return nil
}
