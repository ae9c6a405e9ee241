package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"budgets/internal/core"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard EMAIL",
		Short: "Show the spending overview for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := a.svc.Overview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderOverview(args[0], ov))
			return nil
		},
	}
}

func renderOverview(email string, ov core.Overview) string {
	out := RenderTitle("DASHBOARD  "+email) + "\n\n"
	out += fmt.Sprintf("  %s %s   %s %d   %s %s\n\n",
		mutedStyle.Render("Spent"), moneyStyle.Render(ov.TotalSpent.String()),
		mutedStyle.Render("Transactions"), ov.TransactionCount,
		mutedStyle.Render("Reached"), ov.ReachedRatio)

	if len(ov.Budgets) > 0 {
		rows := make([][]string, 0, len(ov.Budgets))
		for _, s := range ov.Budgets {
			rows = append(rows, []string{
				s.Emoji + " " + s.Name,
				s.TargetAmount.String(),
				s.SpentAmount.String(),
				RenderProgress(s.SpentAmount, s.TargetAmount, 12),
			})
		}
		out += RenderTable(Table{Title: "Budgets", Headers: []string{"Budget", "Target", "Spent", "Progress"}, Rows: rows})
	}
	if len(ov.RecentTransactions) > 0 {
		out += RenderTable(budgetTransactionTable("Recent transactions", ov.RecentTransactions))
	}
	if len(ov.RecentBudgets) > 0 {
		out += RenderTable(budgetTable("Recent budgets", ov.RecentBudgets))
	}
	return out
}
