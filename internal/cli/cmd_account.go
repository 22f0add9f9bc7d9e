package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newAccountCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Trading account management",
	}
	cmd.AddCommand(
		newAccountAddCommand(deps),
		newAccountListCommand(deps),
		newAccountSetBalanceCommand(deps),
		newAccountRemoveCommand(deps),
	)
	return cmd
}

func newAccountAddCommand(deps commandDeps) *cobra.Command {
	var (
		name        string
		accountType string
		balance     string
		currency    string
		broker      string
		portfolioID string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a trading account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("account add does not accept positional arguments")
			}
			if strings.TrimSpace(name) == "" {
				return usageErrorf("account add requires --name")
			}
			switch store.AccountType(strings.ToLower(accountType)) {
			case store.AccountTypeLive, store.AccountTypeDemo, store.AccountTypePaper:
			default:
				return usageErrorf("account add --type must be live, demo or paper")
			}

			amount := decimal.Zero
			if strings.TrimSpace(balance) != "" {
				parsed, err := parseDecimalFlag("balance", balance)
				if err != nil {
					return err
				}
				amount = parsed
			}

			account := store.Account{
				Name:        name,
				Type:        store.AccountType(strings.ToLower(accountType)),
				Balance:     amount,
				Currency:    strings.ToUpper(currency),
				Broker:      broker,
				PortfolioID: portfolioID,
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Accounts.Create(ctx, &account); err != nil {
					return err
				}
				return printAccountOutput(deps, &account)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Account name")
	cmd.Flags().StringVar(&accountType, "type", string(store.AccountTypeDemo), "Account type: live, demo or paper")
	cmd.Flags().StringVar(&balance, "balance", "", "Starting balance")
	cmd.Flags().StringVar(&currency, "currency", "USD", "Account currency")
	cmd.Flags().StringVar(&broker, "broker", "", "Broker name")
	cmd.Flags().StringVar(&portfolioID, "portfolio", "", "Owning portfolio id")
	return cmd
}

func newAccountListCommand(deps commandDeps) *cobra.Command {
	var portfolioID string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List trading accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("account ls does not accept positional arguments")
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				var (
					accounts []store.Account
					err      error
				)
				if portfolioID != "" {
					accounts, err = sess.store.Accounts.ByPortfolio(ctx, portfolioID)
				} else {
					accounts, err = sess.store.Accounts.GetAll(ctx)
				}
				if err != nil {
					return err
				}
				return printResult(deps, accounts, func(w io.Writer) error {
					for _, account := range accounts {
						if _, err := fmt.Fprintf(
							w,
							"%s %s type=%s balance=%s %s\n",
							account.ID,
							account.Name,
							valueOrDash(string(account.Type)),
							account.Balance.String(),
							account.Currency,
						); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&portfolioID, "portfolio", "", "Filter by portfolio id")
	return cmd
}

func newAccountSetBalanceCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <id> <amount>",
		Short: "Overwrite an account balance",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageErrorf("account set-balance requires an account id and an amount")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseDecimalFlag("amount", args[1])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				account, err := sess.store.Accounts.SetBalance(ctx, args[0], amount)
				if err != nil {
					return err
				}
				return printAccountOutput(deps, account)
			})
		},
	}
}

func newAccountRemoveCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a trading account",
		Args:  exactlyOneArg("account rm requires exactly one account id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), deps, func(ctx context.Context, sess session) error {
				if err := sess.store.Accounts.Delete(ctx, args[0]); err != nil {
					return err
				}
				return printResult(deps, map[string]any{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "account removed: %s\n", args[0])
					return err
				})
			})
		},
	}
}

func printAccountOutput(deps commandDeps, account *store.Account) error {
	return printResult(deps, account, func(w io.Writer) error {
		_, err := fmt.Fprintf(
			w,
			"id=%s name=%s type=%s balance=%s currency=%s\n",
			account.ID,
			account.Name,
			valueOrDash(string(account.Type)),
			account.Balance.String(),
			valueOrDash(account.Currency),
		)
		return err
	})
}
