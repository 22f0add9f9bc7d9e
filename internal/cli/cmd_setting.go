package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/spf13/cobra"
)

func newSettingCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Key/value application settings",
	}
	cmd.AddCommand(
		newSettingGetCommand(deps),
		newSettingSetCommand(deps),
		newSettingListCommand(deps),
		newSettingRemoveCommand(deps),
	)
	return cmd
}

func newSettingGetCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting value",
		Args:  exactlyOneArg("setting get requires exactly one key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				setting, err := sess.store.Settings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printResult(deps, setting, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, string(setting.Value))
					return err
				})
			})
		},
	}
}

func newSettingSetCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting value",
		Long:  "The value is stored as JSON when it parses as JSON and as a string otherwise.",
		Example: "  qrc setting set theme dark\n" +
			"  qrc setting set riskPerTrade 0.02\n" +
			"  qrc setting set watchlist '[\"EURUSD\",\"XAUUSD\"]'",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("setting set requires a key and a value")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[1]
			if json.Valid([]byte(args[1])) {
				value = json.RawMessage(args[1])
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Settings.Set(ctx, args[0], value); err != nil {
					return err
				}
				setting, err := sess.store.Settings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printResult(deps, setting, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s=%s\n", setting.Key, string(setting.Value))
					return err
				})
			})
		},
	}
}

func newSettingListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("setting ls does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				settings, err := sess.store.Settings.GetAll(ctx)
				if err != nil {
					return err
				}
				if settings == nil {
					settings = []store.Setting{}
				}
				return printResult(deps, settings, func(w io.Writer) error {
					for _, setting := range settings {
						if _, err := fmt.Fprintf(w, "%s=%s\n", setting.Key, string(setting.Value)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newSettingRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove a setting",
		Args:  exactlyOneArg("setting rm requires exactly one key"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Settings.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "setting removed: %s\n", args[0])
					return err
				})
			})
		},
	}
}
