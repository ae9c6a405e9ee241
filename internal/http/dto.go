package http

import (
	"time"

	"budgets/internal/core"
)

// Response payloads. Money renders as a JSON number with two decimals and
// timestamps as RFC 3339 in UTC.

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type transactionResponse struct {
	ID          string     `json:"id"`
	BudgetID    string     `json:"budget_id"`
	Amount      core.Money `json:"amount"`
	Description string     `json:"description"`
	Emoji       string     `json:"emoji"`
	CreatedAt   time.Time  `json:"created_at"`
}

type budgetTransactionResponse struct {
	transactionResponse
	BudgetName string `json:"budget_name"`
}

type budgetResponse struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Name         string                `json:"name"`
	Amount       core.Money            `json:"amount"`
	Emoji        string                `json:"emoji"`
	CreatedAt    time.Time             `json:"created_at"`
	Spent        core.Money            `json:"spent"`
	Remaining    core.Money            `json:"remaining"`
	Reached      bool                  `json:"reached"`
	Transactions []transactionResponse `json:"transactions"`
}

type summaryResponse struct {
	BudgetID     string     `json:"budget_id"`
	Name         string     `json:"name"`
	Emoji        string     `json:"emoji"`
	TargetAmount core.Money `json:"target_amount"`
	SpentAmount  core.Money `json:"spent_amount"`
}

type overviewResponse struct {
	TotalSpent         core.Money                  `json:"total_spent"`
	TransactionCount   int                         `json:"transaction_count"`
	ReachedRatio       string                      `json:"reached_ratio"`
	Budgets            []summaryResponse           `json:"budgets"`
	RecentTransactions []budgetTransactionResponse `json:"recent_transactions"`
	RecentBudgets      []budgetResponse            `json:"recent_budgets"`
}

func toUser(u core.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt.UTC()}
}

func toTransaction(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		BudgetID:    t.BudgetID,
		Amount:      t.Amount,
		Description: t.Description,
		Emoji:       t.Emoji,
		CreatedAt:   t.CreatedAt.UTC(),
	}
}

func toBudgetTransactions(in []core.BudgetTransaction) []budgetTransactionResponse {
	out := make([]budgetTransactionResponse, 0, len(in))
	for _, bt := range in {
		out = append(out, budgetTransactionResponse{transactionResponse: toTransaction(bt.Transaction), BudgetName: bt.BudgetName})
	}
	return out
}

// toBudget renders a budget without transactions. Spent is zero.
func toBudget(b core.Budget) budgetResponse {
	return toBudgetWithTransactions(core.BudgetWithTransactions{Budget: b})
}

func toBudgetWithTransactions(b core.BudgetWithTransactions) budgetResponse {
	txs := make([]transactionResponse, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		txs = append(txs, toTransaction(t))
	}
	return budgetResponse{
		ID:           b.ID,
		UserID:       b.UserID,
		Name:         b.Name,
		Amount:       b.Amount,
		Emoji:        b.Emoji,
		CreatedAt:    b.CreatedAt.UTC(),
		Spent:        b.Spent(),
		Remaining:    b.Remaining(),
		Reached:      b.Reached(),
		Transactions: txs,
	}
}

func toBudgets(in []core.BudgetWithTransactions) []budgetResponse {
	out := make([]budgetResponse, 0, len(in))
	for _, b := range in {
		out = append(out, toBudgetWithTransactions(b))
	}
	return out
}

func toOverview(o core.Overview) overviewResponse {
	sums := make([]summaryResponse, 0, len(o.Budgets))
	for _, s := range o.Budgets {
		sums = append(sums, summaryResponse{
			BudgetID:     s.BudgetID,
			Name:         s.Name,
			Emoji:        s.Emoji,
			TargetAmount: s.TargetAmount,
			SpentAmount:  s.SpentAmount,
		})
	}
	return overviewResponse{
		TotalSpent:         o.TotalSpent,
		TransactionCount:   o.TransactionCount,
		ReachedRatio:       o.ReachedRatio,
		Budgets:            sums,
		RecentTransactions: toBudgetTransactions(o.RecentTransactions),
		RecentBudgets:      toBudgets(o.RecentBudgets),
	}
}
