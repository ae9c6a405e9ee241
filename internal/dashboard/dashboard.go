// Package dashboard derives summary figures from a user's budgets.
//
// Every function here is pure: it works on an already fetched snapshot and
// never touches storage.
package dashboard

import (
	"sort"
	"strconv"

	"budgets/internal/core"
)

const (
	DefaultRecentTransactions = 10
	DefaultRecentBudgets      = 3
)

// TotalSpent sums every transaction amount across all budgets.
func TotalSpent(budgets []core.BudgetWithTransactions) core.Money {
	var total core.Money
	for _, b := range budgets {
		total = total.Add(b.Spent())
	}
	return total
}

// TransactionCount counts transactions across all budgets.
func TransactionCount(budgets []core.BudgetWithTransactions) int {
	n := 0
	for _, b := range budgets {
		n += len(b.Transactions)
	}
	return n
}

// ReachedRatio returns "<reached>/<total>", where reached counts budgets whose
// spent amount has met or exceeded the target. It is a count pair, so an
// empty snapshot yields "0/0".
func ReachedRatio(budgets []core.BudgetWithTransactions) string {
	reached := 0
	for _, b := range budgets {
		if b.Reached() {
			reached++
		}
	}
	return strconv.Itoa(reached) + "/" + strconv.Itoa(len(budgets))
}

// Summaries returns one row per budget in input order.
func Summaries(budgets []core.BudgetWithTransactions) []core.BudgetSummary {
	out := make([]core.BudgetSummary, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, core.BudgetSummary{
			BudgetID:     b.ID,
			Name:         b.Name,
			Emoji:        b.Emoji,
			TargetAmount: b.Amount,
			SpentAmount:  b.Spent(),
		})
	}
	return out
}

// RecentTransactions flattens all transactions, newest first, truncated to limit.
func RecentTransactions(budgets []core.BudgetWithTransactions, limit int) []core.BudgetTransaction {
	if limit <= 0 {
		return []core.BudgetTransaction{}
	}
	var all []core.BudgetTransaction
	for _, b := range budgets {
		for _, t := range b.Transactions {
			all = append(all, core.BudgetTransaction{Transaction: t, BudgetName: b.Name})
		}
	}
	SortTransactionsNewestFirst(all)
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []core.BudgetTransaction{}
	}
	return all
}

// RecentBudgets returns the most recently created budgets, truncated to limit.
// The input slice is not reordered.
func RecentBudgets(budgets []core.BudgetWithTransactions, limit int) []core.BudgetWithTransactions {
	if limit <= 0 {
		return []core.BudgetWithTransactions{}
	}
	sorted := make([]core.BudgetWithTransactions, len(budgets))
	copy(sorted, budgets)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// SortTransactionsNewestFirst orders by creation time descending. Equal
// timestamps fall back to descending ID so results are stable across stores.
func SortTransactionsNewestFirst(txs []core.BudgetTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// Build assembles the full dashboard with the default feed sizes.
func Build(budgets []core.BudgetWithTransactions) core.Overview {
	return core.Overview{
		TotalSpent:         TotalSpent(budgets),
		TransactionCount:   TransactionCount(budgets),
		ReachedRatio:       ReachedRatio(budgets),
		Budgets:            Summaries(budgets),
		RecentTransactions: RecentTransactions(budgets, DefaultRecentTransactions),
		RecentBudgets:      RecentBudgets(budgets, DefaultRecentBudgets),
	}
}
