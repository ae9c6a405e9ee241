package storage

import (
	"context"
	"time"

	"budgets/internal/core"
)

// Queries are the persistence primitives the service composes. Lookups of
// missing rows return core.ErrNotFound, uniqueness violations return
// core.ErrConflict and driver failures wrap core.ErrStoreUnavailable.
type Queries interface {
	FindUserByEmail(ctx context.Context, email string) (core.User, error)
	InsertUser(ctx context.Context, u core.User) error

	FindBudget(ctx context.Context, id string) (core.Budget, error)
	// ListBudgets returns the user's budgets oldest first.
	ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
	InsertBudget(ctx context.Context, b core.Budget) error
	DeleteBudget(ctx context.Context, id string) error

	FindTransaction(ctx context.Context, id string) (core.Transaction, error)
	// ListTransactions returns the budget's transactions oldest first.
	ListTransactions(ctx context.Context, budgetID string) ([]core.Transaction, error)
	SumTransactions(ctx context.Context, budgetID string) (core.Money, error)
	InsertTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	DeleteTransactionsByBudget(ctx context.Context, budgetID string) error
	// ListTransactionsSince returns the user's transactions created at or
	// after cutoff, newest first.
	ListTransactionsSince(ctx context.Context, userID string, cutoff time.Time) ([]core.BudgetTransaction, error)
}

// Store is a Queries implementation that can run a unit of work atomically.
// If fn returns an error nothing it wrote is kept.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}
