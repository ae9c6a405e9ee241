// Package storagetest holds the behaviour every storage.Store must share.
// Each backend's tests call Run with a constructor for a fresh, empty store.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgets/internal/core"
	"budgets/internal/storage"
)

var epoch = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"DuplicateEmail", testDuplicateEmail},
		{"BudgetRoundTrip", testBudgetRoundTrip},
		{"DuplicateBudgetName", testDuplicateBudgetName},
		{"TransactionsOrderedAndSummed", testTransactions},
		{"DeleteBudgetCascades", testDeleteBudgetCascades},
		{"DeleteMissing", testDeleteMissing},
		{"TransactionsSince", testTransactionsSince},
		{"WithTxRollsBack", testWithTxRollsBack},
		{"WithTxCommits", testWithTxCommits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

func seedUser(t *testing.T, s storage.Store, email string) core.User {
	t.Helper()
	u := core.User{ID: core.NewID(), Email: email, CreatedAt: epoch}
	if err := s.InsertUser(context.Background(), u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

func seedBudget(t *testing.T, s storage.Store, userID, name string, cents int64, created time.Time) core.Budget {
	t.Helper()
	b := core.Budget{
		ID:        core.NewID(),
		UserID:    userID,
		Name:      name,
		Amount:    core.Money{Cents: cents},
		Emoji:     "🛒",
		CreatedAt: created,
	}
	if err := s.InsertBudget(context.Background(), b); err != nil {
		t.Fatalf("insert budget: %v", err)
	}
	return b
}

func seedTransaction(t *testing.T, s storage.Store, budgetID string, cents int64, created time.Time) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		ID:          core.NewID(),
		BudgetID:    budgetID,
		Amount:      core.Money{Cents: cents},
		Description: "item",
		Emoji:       "🛒",
		CreatedAt:   created,
	}
	if err := s.InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
	return tx
}

func testUserRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")

	got, err := s.FindUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if got.ID != u.ID || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Fatalf("got %+v, want %+v", got, u)
	}

	if _, err := s.FindUserByEmail(ctx, "missing@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateEmail(t *testing.T, s storage.Store) {
	seedUser(t, s, "a@example.com")
	err := s.InsertUser(context.Background(), core.User{ID: core.NewID(), Email: "a@example.com", CreatedAt: epoch})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func testBudgetRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	later := seedBudget(t, s, u.ID, "Rent", 90000, epoch.Add(time.Hour))
	first := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)

	got, err := s.FindBudget(ctx, first.ID)
	if err != nil {
		t.Fatalf("find budget: %v", err)
	}
	if got.Name != "Groceries" || got.Amount.Cents != 20000 || got.Emoji != "🛒" || got.UserID != u.ID {
		t.Fatalf("unexpected budget: %+v", got)
	}

	list, err := s.ListBudgets(ctx, u.ID)
	if err != nil {
		t.Fatalf("list budgets: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != later.ID {
		t.Fatalf("expected budgets oldest first, got %+v", list)
	}

	other, err := s.ListBudgets(ctx, "nobody")
	if err != nil || len(other) != 0 {
		t.Fatalf("expected empty list, got %v, %v", other, err)
	}

	if _, err := s.FindBudget(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateBudgetName(t *testing.T, s storage.Store) {
	a := seedUser(t, s, "a@example.com")
	b := seedUser(t, s, "b@example.com")
	seedBudget(t, s, a.ID, "Groceries", 100, epoch)

	dup := core.Budget{ID: core.NewID(), UserID: a.ID, Name: "Groceries", Amount: core.Money{Cents: 5}, CreatedAt: epoch}
	if err := s.InsertBudget(context.Background(), dup); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Names are only unique per user.
	seedBudget(t, s, b.ID, "Groceries", 100, epoch)
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	b := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)
	second := seedTransaction(t, s, b.ID, 2500, epoch.Add(2*time.Hour))
	first := seedTransaction(t, s, b.ID, 5000, epoch.Add(time.Hour))

	txs, err := s.ListTransactions(ctx, b.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 2 || txs[0].ID != first.ID || txs[1].ID != second.ID {
		t.Fatalf("expected transactions oldest first, got %+v", txs)
	}
	if txs[0].Description != "item" || txs[0].Emoji != "🛒" {
		t.Fatalf("unexpected transaction fields: %+v", txs[0])
	}

	sum, err := s.SumTransactions(ctx, b.ID)
	if err != nil {
		t.Fatalf("sum transactions: %v", err)
	}
	if sum.Cents != 7500 {
		t.Fatalf("expected 7500 cents, got %d", sum.Cents)
	}

	empty, err := s.SumTransactions(ctx, "none")
	if err != nil || empty.Cents != 0 {
		t.Fatalf("expected zero sum, got %v, %v", empty, err)
	}

	found, err := s.FindTransaction(ctx, first.ID)
	if err != nil || found.Amount.Cents != 5000 {
		t.Fatalf("find transaction: %+v, %v", found, err)
	}
}

func testDeleteBudgetCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	b := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)
	keep := seedBudget(t, s, u.ID, "Rent", 20000, epoch)
	tx := seedTransaction(t, s, b.ID, 100, epoch.Add(time.Minute))
	kept := seedTransaction(t, s, keep.ID, 100, epoch.Add(time.Minute))

	if err := s.DeleteBudget(ctx, b.ID); err != nil {
		t.Fatalf("delete budget: %v", err)
	}
	if _, err := s.FindBudget(ctx, b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected budget gone, got %v", err)
	}
	if _, err := s.FindTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected transaction gone, got %v", err)
	}
	if _, err := s.FindTransaction(ctx, kept.ID); err != nil {
		t.Fatalf("unrelated transaction removed: %v", err)
	}
}

func testDeleteMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.DeleteBudget(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for budget, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for transaction, got %v", err)
	}
}

func testTransactionsSince(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	other := seedUser(t, s, "b@example.com")
	groceries := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)
	travel := seedBudget(t, s, u.ID, "Travel", 20000, epoch)
	foreign := seedBudget(t, s, other.ID, "Groceries", 20000, epoch)

	cutoff := epoch.Add(24 * time.Hour)
	seedTransaction(t, s, groceries.ID, 1, cutoff.Add(-time.Hour))
	boundary := seedTransaction(t, s, groceries.ID, 2, cutoff)
	older := seedTransaction(t, s, groceries.ID, 3, cutoff.Add(time.Hour))
	newer := seedTransaction(t, s, travel.ID, 4, cutoff.Add(2*time.Hour))
	seedTransaction(t, s, foreign.ID, 5, cutoff.Add(3*time.Hour))

	got, err := s.ListTransactionsSince(ctx, u.ID, cutoff)
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 transactions, got %d: %+v", len(got), got)
	}
	if got[0].ID != newer.ID || got[0].BudgetName != "Travel" {
		t.Fatalf("expected newest first, got %+v", got[0])
	}
	if got[1].ID != older.ID || got[1].BudgetName != "Groceries" {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
	if got[2].ID != boundary.ID {
		t.Fatalf("cutoff should be inclusive, got %+v", got[2])
	}
}

var errAbort = errors.New("abort")

func testWithTxRollsBack(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	b := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)

	err := s.WithTx(ctx, func(q storage.Queries) error {
		tx := core.Transaction{ID: core.NewID(), BudgetID: b.ID, Amount: core.Money{Cents: 100}, CreatedAt: epoch}
		if err := q.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	txs, err := s.ListTransactions(ctx, b.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected rollback, found %d transactions", len(txs))
	}
}

func testWithTxCommits(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := seedUser(t, s, "a@example.com")
	b := seedBudget(t, s, u.ID, "Groceries", 20000, epoch)

	err := s.WithTx(ctx, func(q storage.Queries) error {
		if err := q.DeleteTransactionsByBudget(ctx, b.ID); err != nil {
			return err
		}
		return q.DeleteBudget(ctx, b.ID)
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if _, err := s.FindBudget(ctx, b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected budget deleted, got %v", err)
	}
}
