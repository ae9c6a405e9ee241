package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgets/internal/core"
)

func newTxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}

	var description string
	add := &cobra.Command{
		Use:   "add BUDGET_ID AMOUNT",
		Short: "Record a transaction against a budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseMoney(args[1])
			if err != nil {
				return err
			}
			tx, err := a.svc.AddTransaction(cmd.Context(), args[0], amount, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s  %s\n", tx.Emoji, tx.Amount, mutedStyle.Render(tx.ID))
			return nil
		},
	}
	add.Flags().StringVarP(&description, "description", "d", "", "What the money was spent on")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteTransaction(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %s\n", args[0])
			return nil
		},
	}

	var period string
	list := &cobra.Command{
		Use:   "list EMAIL",
		Short: "List a user's transactions in a period, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txs, err := a.svc.ListTransactionsForUserInPeriod(cmd.Context(), args[0], period)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(txs) == 0 {
				fmt.Fprintf(out, "No transactions in %s.\n", period)
				return nil
			}
			fmt.Fprint(out, RenderTable(budgetTransactionTable(fmt.Sprintf("Transactions (%s)", period), txs)))
			return nil
		},
	}
	list.Flags().StringVarP(&period, "period", "p", string(core.Last30), "One of last7, last30, last90, last365")

	cmd.AddCommand(add, del, list)
	return cmd
}
