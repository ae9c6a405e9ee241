package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgets/internal/core"
)

func newBudgetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budgets",
	}

	var emoji string
	create := &cobra.Command{
		Use:   "create EMAIL NAME AMOUNT",
		Short: "Create a budget for a user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseMoney(args[2])
			if err != nil {
				return err
			}
			b, err := a.svc.CreateBudget(cmd.Context(), args[0], args[1], amount, emoji)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created budget %s %s (%s)  %s\n", b.Emoji, b.Name, b.Amount, mutedStyle.Render(b.ID))
			return nil
		},
	}
	create.Flags().StringVar(&emoji, "emoji", "", "Emoji shown next to the budget")

	list := &cobra.Command{
		Use:   "list EMAIL",
		Short: "List a user's budgets with progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			budgets, err := a.svc.ListBudgetsForUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(budgets) == 0 {
				fmt.Fprintln(out, "No budgets.")
				return nil
			}
			fmt.Fprint(out, RenderTable(budgetTable("Budgets", budgets)))
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show a budget and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.svc.GetBudgetWithTransactions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, RenderTitle(fmt.Sprintf("%s %s", b.Emoji, b.Name)))
			fmt.Fprintf(out, "  %s\n\n", RenderProgress(b.Spent(), b.Amount, 30))
			if len(b.Transactions) == 0 {
				fmt.Fprintln(out, "No transactions.")
				return nil
			}
			fmt.Fprint(out, RenderTable(transactionTable(b.Transactions)))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a budget and all of its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.svc.DeleteBudget(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted budget %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(create, list, show, del)
	return cmd
}
