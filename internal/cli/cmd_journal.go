package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/spf13/cobra"
)

type journalFields struct {
	date     string
	title    string
	content  string
	mood     string
	tags     []string
	tradeIDs []string
}

func (f *journalFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "Entry date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.title, "title", "", "Entry title")
	cmd.Flags().StringVar(&f.content, "content", "", "Entry body")
	cmd.Flags().StringVar(&f.mood, "mood", "", "Mood label")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Entry tag (repeatable)")
	cmd.Flags().StringSliceVar(&f.tradeIDs, "trade", nil, "Linked trade id (repeatable)")
}

func (f *journalFields) entry() store.JournalEntry {
	return store.JournalEntry{
		Date:     f.date,
		Title:    f.title,
		Content:  f.content,
		Mood:     f.mood,
		Tags:     append([]string(nil), f.tags...),
		TradeIDs: append([]string(nil), f.tradeIDs...),
	}
}

func newJournalCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Trading journal entries",
	}
	cmd.AddCommand(
		newJournalAddCommand(deps),
		newJournalListCommand(deps),
		newJournalShowCommand(deps),
		newJournalEditCommand(deps),
		newJournalRemoveCommand(deps),
	)
	return cmd
}

func newJournalAddCommand(deps commandDeps) *cobra.Command {
	var fields journalFields

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Write a journal entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("journal add does not accept positional arguments")
			}
			if strings.TrimSpace(fields.title) == "" && strings.TrimSpace(fields.content) == "" {
				return usageErrorf("journal add requires --title or --content")
			}
			entry := fields.entry()
			if entry.Date == "" {
				entry.Date = time.Now().UTC().Format(time.DateOnly)
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Journal.Create(ctx, &entry); err != nil {
					return err
				}
				return printJournalOutput(deps, &entry)
			})
		},
	}
	fields.register(cmd)
	return cmd
}

func newJournalListCommand(deps commandDeps) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("journal ls does not accept positional arguments")
			}
			var filters []store.Filter
			if date != "" {
				filters = append(filters, store.Filter{Field: store.FieldDate, Value: date})
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				entries, err := sess.store.Journal.GetAll(ctx, filters...)
				if err != nil {
					return err
				}
				return printResult(deps, entries, func(w io.Writer) error {
					for _, entry := range entries {
						if _, err := fmt.Fprintf(w, "%s %s %s\n", entry.ID, valueOrDash(entry.Date), valueOrDash(entry.Title)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Filter by date YYYY-MM-DD")
	return cmd
}

func newJournalShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a journal entry",
		Args:  exactlyOneArg("journal show requires exactly one entry id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				entry, err := sess.store.Journal.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJournalOutput(deps, entry)
			})
		},
	}
}

func newJournalEditCommand(deps commandDeps) *cobra.Command {
	var fields journalFields

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing journal entry",
		Long:  "Only the flags given are changed; every other field keeps its stored value.",
		Args:  exactlyOneArg("journal edit requires exactly one entry id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := fields.entry()
			patch.ID = args[0]
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Journal.Update(ctx, &patch); err != nil {
					return err
				}
				return printJournalOutput(deps, &patch)
			})
		},
	}
	fields.register(cmd)
	return cmd
}

func newJournalRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a journal entry",
		Args:  exactlyOneArg("journal rm requires exactly one entry id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Journal.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "journal entry removed: %s\n", args[0])
					return err
				})
			})
		},
	}
}

func printJournalOutput(deps commandDeps, entry *store.JournalEntry) error {
	return printResult(deps, entry, func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%s date=%s title=%s mood=%s tags=%s\n",
			entry.ID,
			valueOrDash(entry.Date),
			valueOrDash(entry.Title),
			valueOrDash(entry.Mood),
			valueOrDash(strings.Join(entry.Tags, ",")),
		)
		return err
	})
}
