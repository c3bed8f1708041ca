package app

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUsersCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage report buyers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <email>",
		Short: "Create a user with an empty credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			u, err := rt.store.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", u.ID, u.Email)
			return nil
		},
	})
	return cmd
}

func newCreditsCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up credit balances",
	}

	var reason string
	add := &cobra.Command{
		Use:   "add <email> <amount>",
		Short: "Add credits to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil || amount < 1 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			u, err := rt.store.UserByEmail(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			txn, err := rt.store.AddCredits(ctx, u.ID, amount, reason, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d credits\n", u.Email, txn.BalanceBefore, txn.BalanceAfter)
			return nil
		},
	}
	add.Flags().StringVar(&reason, "reason", "Manual top-up", "ledger description")

	var history bool
	balance := &cobra.Command{
		Use:   "balance <email>",
		Short: "Print a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load()
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()

			u, err := rt.store.UserByEmail(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d credits\n", u.Email, u.Credits)
			if !history {
				return nil
			}
			txns, err := rt.store.Transactions(ctx, u.ID)
			if err != nil {
				return err
			}
			for _, t := range txns {
				line := fmt.Sprintf("%s  %+d  %d -> %d  %s", t.CreatedAt.Format("2006-01-02 15:04"), t.Amount, t.BalanceBefore, t.BalanceAfter, t.Description)
				if id := t.Metadata["report_uuid"]; id != "" {
					line += "  report " + id
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	balance.Flags().BoolVar(&history, "history", false, "also list ledger entries, newest first")

	cmd.AddCommand(add, balance)
	return cmd
}
