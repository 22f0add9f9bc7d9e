package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	JSON       bool
	Quiet      bool
	Yes        bool
	DBPath     string
	ConfigPath string
	LogLevel   string
	Timeout    time.Duration
}

type commandDeps struct {
	out     io.Writer
	build   BuildInfo
	globals *GlobalOptions
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	deps := commandDeps{out: out, build: build, globals: globals}

	cmd := &cobra.Command{
		Use:           "qrc",
		Short:         "Offline trading journal store",
		Long:          "qrc manages the local trading journal database: trades, accounts, journal entries, settings, and whole-dataset export and import.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON output")
	flags.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress non-essential output")
	flags.BoolVarP(&globals.Yes, "yes", "y", false, "Assume yes for confirmation prompts")
	flags.StringVar(&globals.DBPath, "db", "", "Database path (overrides config and QRC_DB_PATH)")
	flags.StringVar(&globals.ConfigPath, "config", "", "Config file path")
	flags.StringVar(&globals.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.DurationVar(&globals.Timeout, "timeout", 30*time.Second, "Deadline for a single command")

	cmd.AddCommand(
		newVersionCommand(deps),
		newInitCommand(deps),
		newStatusCommand(deps),
		newDoctorCommand(deps),
		newDebugCommand(deps),
		newExportCommand(deps),
		newImportCommand(deps),
		newClearCommand(deps),
		newTradeCommand(deps),
		newAccountCommand(deps),
		newJournalCommand(deps),
		newSettingCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
