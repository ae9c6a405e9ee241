package core

// BudgetSummary is the per-budget row shown on the dashboard chart.
type BudgetSummary struct {
	BudgetID     string
	Name         string
	Emoji        string
	TargetAmount Money
	SpentAmount  Money
}

// Overview is the full dashboard for one user.
type Overview struct {
	TotalSpent         Money
	TransactionCount   int
	ReachedRatio       string
	Budgets            []BudgetSummary
	RecentTransactions []BudgetTransaction
	RecentBudgets      []BudgetWithTransactions
}
