package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTradeCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade management",
	}
	cmd.AddCommand(
		newTradeAddCommand(deps),
		newTradeListCommand(deps),
		newTradeShowCommand(deps),
		newTradeCloseCommand(deps),
		newTradeRemoveCommand(deps),
		newTradeImportCommand(deps),
	)
	return cmd
}

func newTradeAddCommand(deps commandDeps) *cobra.Command {
	var (
		accountID  string
		symbol     string
		tradeType  string
		side       string
		status     string
		quantity   string
		entryPrice string
		stopLoss   string
		takeProfit string
		fees       string
		entryDate  string
		strategy   string
		notes      string
		tags       []string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a trade",
		Example: "  qrc trade add --account acc-1 --symbol EURUSD --side buy --qty 1 --entry-price 1.0850\n" +
			"  qrc trade add --account acc-1 --symbol BTCUSD --type short --qty 0.5 --entry-price 64000 --tag crypto",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("trade add does not accept positional arguments")
			}
			if strings.TrimSpace(symbol) == "" {
				return usageErrorf("trade add requires --symbol")
			}
			if strings.TrimSpace(accountID) == "" {
				return usageErrorf("trade add requires --account")
			}

			trade := store.Trade{
				AccountID: accountID,
				Symbol:    strings.ToUpper(strings.TrimSpace(symbol)),
				Type:      store.TradeType(strings.ToLower(tradeType)),
				Side:      store.TradeSide(strings.ToLower(side)),
				Status:    store.TradeStatus(strings.ToLower(status)),
				EntryDate: entryDate,
				Strategy:  strategy,
				Notes:     notes,
				Tags:      append([]string(nil), tags...),
			}
			if trade.EntryDate == "" {
				trade.EntryDate = time.Now().UTC().Format(time.DateOnly)
			}

			var err error
			if trade.Quantity, err = parseDecimalFlag("qty", quantity); err != nil {
				return err
			}
			if trade.EntryPrice, err = parseDecimalFlag("entry-price", entryPrice); err != nil {
				return err
			}
			if trade.StopLoss, err = parseOptionalDecimalFlag("stop-loss", stopLoss); err != nil {
				return err
			}
			if trade.TakeProfit, err = parseOptionalDecimalFlag("take-profit", takeProfit); err != nil {
				return err
			}
			if trade.Fees, err = parseOptionalDecimalFlag("fees", fees); err != nil {
				return err
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Trades.Create(ctx, &trade); err != nil {
					return err
				}
				return printTradeOutput(deps, &trade)
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account id")
	cmd.Flags().StringVar(&symbol, "symbol", "", "Instrument symbol")
	cmd.Flags().StringVar(&tradeType, "type", string(store.TradeTypeLong), "Trade type: long or short")
	cmd.Flags().StringVar(&side, "side", "", "Order side: buy or sell")
	cmd.Flags().StringVar(&status, "status", string(store.TradeStatusOpen), "Status: open, closed, cancelled or pending")
	cmd.Flags().StringVar(&quantity, "qty", "", "Quantity")
	cmd.Flags().StringVar(&entryPrice, "entry-price", "", "Entry price")
	cmd.Flags().StringVar(&stopLoss, "stop-loss", "", "Stop loss price")
	cmd.Flags().StringVar(&takeProfit, "take-profit", "", "Take profit price")
	cmd.Flags().StringVar(&fees, "fees", "", "Fees paid")
	cmd.Flags().StringVar(&entryDate, "entry-date", "", "Entry date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Trade tag (repeatable)")
	return cmd
}

func newTradeListCommand(deps commandDeps) *cobra.Command {
	var (
		accountID string
		status    string
		symbol    string
		entryDate string
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("trade ls does not accept positional arguments")
			}
			var filters []store.Filter
			if accountID != "" {
				filters = append(filters, store.Filter{Field: store.FieldAccountID, Value: accountID})
			}
			if status != "" {
				filters = append(filters, store.Filter{Field: store.FieldStatus, Value: strings.ToLower(status)})
			}
			if symbol != "" {
				filters = append(filters, store.Filter{Field: store.FieldSymbol, Value: strings.ToUpper(symbol)})
			}
			if entryDate != "" {
				filters = append(filters, store.Filter{Field: store.FieldEntryDate, Value: entryDate})
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				trades, err := sess.store.Trades.GetAll(ctx, filters...)
				if err != nil {
					return err
				}
				return printResult(deps, trades, func(w io.Writer) error {
					for _, trade := range trades {
						if _, err := fmt.Fprintf(
							w,
							"%s %s %s qty=%s entry=%s status=%s date=%s\n",
							trade.ID,
							trade.Symbol,
							valueOrDash(string(trade.Type)),
							trade.Quantity.String(),
							trade.EntryPrice.String(),
							trade.Status,
							valueOrDash(trade.EntryDate),
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "Filter by account id")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&symbol, "symbol", "", "Filter by symbol")
	cmd.Flags().StringVar(&entryDate, "entry-date", "", "Filter by entry date YYYY-MM-DD")
	return cmd
}

func newTradeShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show trade details",
		Args:  exactlyOneArg("trade show requires exactly one trade id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				trade, err := sess.store.Trades.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printTradeOutput(deps, trade)
			})
		},
	}
}

func newTradeCloseCommand(deps commandDeps) *cobra.Command {
	var (
		exitPrice  string
		profitLoss string
	)

	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close an open trade",
		Args:  exactlyOneArg("trade close requires exactly one trade id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := parseDecimalFlag("exit-price", exitPrice)
			if err != nil {
				return err
			}
			pnl, err := parseOptionalDecimalFlag("pnl", profitLoss)
			if err != nil {
				return err
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				trade, err := sess.store.Trades.Get(ctx, args[0])
				if err != nil {
					return err
				}
				now := time.Now().UTC()
				trade.Status = store.TradeStatusClosed
				trade.ExitPrice = &price
				trade.ExitTime = &now
				if pnl == nil {
					pnl = realizedPnL(trade, price)
				}
				trade.ProfitLoss = pnl
				if err := sess.store.Trades.Update(ctx, trade); err != nil {
					return err
				}
				return printTradeOutput(deps, trade)
			})
		},
	}
	cmd.Flags().StringVar(&exitPrice, "exit-price", "", "Exit price")
	cmd.Flags().StringVar(&profitLoss, "pnl", "", "Realized profit or loss (default computed from prices)")
	return cmd
}

func newTradeRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a trade",
		Args:  exactlyOneArg("trade rm requires exactly one trade id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Trades.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "trade removed: %s\n", args[0])
					return err
				})
			})
		},
	}
}

func newTradeImportCommand(deps commandDeps) *cobra.Command {
	var fromPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk insert trades from a JSON or YAML list",
		Long:  "Insert every trade in the file inside one transaction. If any trade is invalid or collides with an existing id, none are stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("trade import does not accept positional arguments")
			}
			if strings.TrimSpace(fromPath) == "" {
				return usageErrorf("trade import requires --from")
			}
			trades, err := readTradeList(fromPath)
			if err != nil {
				return mapCommandError(err)
			}

			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Trades.BulkInsert(ctx, trades); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"inserted": len(trades)}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "inserted %d trades\n", len(trades))
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&fromPath, "from", "", "Input path (.json, .yaml or .yml)")
	return cmd
}

func printTradeOutput(deps commandDeps, trade *store.Trade) error {
	return printResult(deps, trade, func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%s symbol=%s account=%s type=%s side=%s status=%s qty=%s entry=%s date=%s\n",
			trade.ID,
			trade.Symbol,
			trade.AccountID,
			valueOrDash(string(trade.Type)),
			valueOrDash(string(trade.Side)),
			trade.Status,
			trade.Quantity.String(),
			trade.EntryPrice.String(),
			valueOrDash(trade.EntryDate),
		)
		return err
	})
}

// realizedPnL is (exit - entry) * qty for long trades and the negation for
// short ones, less fees when recorded.
func realizedPnL(trade *store.Trade, exit decimal.Decimal) *decimal.Decimal {
	diff := exit.Sub(trade.EntryPrice)
	if trade.Type == store.TradeTypeShort {
		diff = diff.Neg()
	}
	pnl := diff.Mul(trade.Quantity)
	if trade.Fees != nil {
		pnl = pnl.Sub(*trade.Fees)
	}
	return &pnl
}

func readTradeList(path string) ([]store.Trade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trade import: read input: %w", err)
	}
	format, err := resolveSnapshotFormat("", string(store.FormatJSON), path)
	if err != nil {
		return nil, err
	}

	// YAML is re-expressed as JSON so decimals and timestamps decode the same
	// way in both formats.
	if format == store.FormatYAML {
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, usageErrorf("trade import: parse yaml: %v", err)
		}
		if data, err = json.Marshal(generic); err != nil {
			return nil, usageErrorf("trade import: %v", err)
		}
	}

	var trades []store.Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, usageErrorf("trade import: parse input: %v", err)
	}
	return trades, nil
}

func parseDecimalFlag(name, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Decimal{}, usageErrorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, usageErrorf("--%s must be a decimal number: %v", name, err)
	}
	return d, nil
}

func parseOptionalDecimalFlag(name, raw string) (*decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDecimalFlag(name, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func exactlyOneArg(message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return usageErrorf("%s", message)
		}
		return nil
	}
}
