// Package memory is a process-local Store used for tests and demos. It keeps
// the same uniqueness and cascade rules as the SQLite schema.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"budgets/internal/core"
	"budgets/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	tables *tables
	closed bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: newTables()}
}

// WithTx holds the store lock for the whole callback and restores the
// previous state if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(q storage.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	snapshot := s.tables.clone()
	if err := fn(s.tables); err != nil {
		s.tables = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usable(ctx)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return fmt.Errorf("%w: store closed", core.ErrStoreUnavailable)
	}
	return nil
}

func locked[T any](s *Store, ctx context.Context, fn func(t *tables) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		var zero T
		return zero, err
	}
	return fn(s.tables)
}

func lockedErr(s *Store, ctx context.Context, fn func(t *tables) error) error {
	_, err := locked(s, ctx, func(t *tables) (struct{}, error) { return struct{}{}, fn(t) })
	return err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	return locked(s, ctx, func(t *tables) (core.User, error) { return t.FindUserByEmail(ctx, email) })
}

func (s *Store) InsertUser(ctx context.Context, u core.User) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.InsertUser(ctx, u) })
}

func (s *Store) FindBudget(ctx context.Context, id string) (core.Budget, error) {
	return locked(s, ctx, func(t *tables) (core.Budget, error) { return t.FindBudget(ctx, id) })
}

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	return locked(s, ctx, func(t *tables) ([]core.Budget, error) { return t.ListBudgets(ctx, userID) })
}

func (s *Store) InsertBudget(ctx context.Context, b core.Budget) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.InsertBudget(ctx, b) })
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.DeleteBudget(ctx, id) })
}

func (s *Store) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return locked(s, ctx, func(t *tables) (core.Transaction, error) { return t.FindTransaction(ctx, id) })
}

func (s *Store) ListTransactions(ctx context.Context, budgetID string) ([]core.Transaction, error) {
	return locked(s, ctx, func(t *tables) ([]core.Transaction, error) { return t.ListTransactions(ctx, budgetID) })
}

func (s *Store) SumTransactions(ctx context.Context, budgetID string) (core.Money, error) {
	return locked(s, ctx, func(t *tables) (core.Money, error) { return t.SumTransactions(ctx, budgetID) })
}

func (s *Store) InsertTransaction(ctx context.Context, tx core.Transaction) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.InsertTransaction(ctx, tx) })
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.DeleteTransaction(ctx, id) })
}

func (s *Store) DeleteTransactionsByBudget(ctx context.Context, budgetID string) error {
	return lockedErr(s, ctx, func(t *tables) error { return t.DeleteTransactionsByBudget(ctx, budgetID) })
}

func (s *Store) ListTransactionsSince(ctx context.Context, userID string, cutoff time.Time) ([]core.BudgetTransaction, error) {
	return locked(s, ctx, func(t *tables) ([]core.BudgetTransaction, error) {
		return t.ListTransactionsSince(ctx, userID, cutoff)
	})
}

// tables is the unlocked state. It implements storage.Queries so WithTx
// callbacks can use it directly while the store lock is held.
type tables struct {
	users        map[string]core.User
	budgets      map[string]core.Budget
	transactions map[string]core.Transaction
}

func newTables() *tables {
	return &tables{
		users:        map[string]core.User{},
		budgets:      map[string]core.Budget{},
		transactions: map[string]core.Transaction{},
	}
}

func (t *tables) clone() *tables {
	return &tables{
		users:        maps.Clone(t.users),
		budgets:      maps.Clone(t.budgets),
		transactions: maps.Clone(t.transactions),
	}
}

func (t *tables) FindUserByEmail(_ context.Context, email string) (core.User, error) {
	for _, u := range t.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("find user %s: %w", email, core.ErrNotFound)
}

func (t *tables) InsertUser(_ context.Context, u core.User) error {
	if _, ok := t.users[u.ID]; ok {
		return fmt.Errorf("insert user: %w: duplicate id", core.ErrConflict)
	}
	for _, existing := range t.users {
		if existing.Email == u.Email {
			return fmt.Errorf("insert user: %w: email already registered", core.ErrConflict)
		}
	}
	t.users[u.ID] = u
	return nil
}

func (t *tables) FindBudget(_ context.Context, id string) (core.Budget, error) {
	b, ok := t.budgets[id]
	if !ok {
		return core.Budget{}, fmt.Errorf("find budget %s: %w", id, core.ErrNotFound)
	}
	return b, nil
}

func (t *tables) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	out := []core.Budget{}
	for _, b := range t.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tables) InsertBudget(_ context.Context, b core.Budget) error {
	if _, ok := t.users[b.UserID]; !ok {
		return fmt.Errorf("insert budget: user %s: %w", b.UserID, core.ErrNotFound)
	}
	if _, ok := t.budgets[b.ID]; ok {
		return fmt.Errorf("insert budget: %w: duplicate id", core.ErrConflict)
	}
	for _, existing := range t.budgets {
		if existing.UserID == b.UserID && existing.Name == b.Name {
			return fmt.Errorf("insert budget: %w: name %q already used", core.ErrConflict, b.Name)
		}
	}
	t.budgets[b.ID] = b
	return nil
}

func (t *tables) DeleteBudget(_ context.Context, id string) error {
	if _, ok := t.budgets[id]; !ok {
		return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	delete(t.budgets, id)
	for txID, tx := range t.transactions {
		if tx.BudgetID == id {
			delete(t.transactions, txID)
		}
	}
	return nil
}

func (t *tables) FindTransaction(_ context.Context, id string) (core.Transaction, error) {
	tx, ok := t.transactions[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("find transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

func (t *tables) ListTransactions(_ context.Context, budgetID string) ([]core.Transaction, error) {
	out := []core.Transaction{}
	for _, tx := range t.transactions {
		if tx.BudgetID == budgetID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tables) SumTransactions(_ context.Context, budgetID string) (core.Money, error) {
	var total core.Money
	for _, tx := range t.transactions {
		if tx.BudgetID == budgetID {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (t *tables) InsertTransaction(_ context.Context, tx core.Transaction) error {
	if _, ok := t.budgets[tx.BudgetID]; !ok {
		return fmt.Errorf("insert transaction: budget %s: %w", tx.BudgetID, core.ErrNotFound)
	}
	if _, ok := t.transactions[tx.ID]; ok {
		return fmt.Errorf("insert transaction: %w: duplicate id", core.ErrConflict)
	}
	t.transactions[tx.ID] = tx
	return nil
}

func (t *tables) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := t.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(t.transactions, id)
	return nil
}

func (t *tables) DeleteTransactionsByBudget(_ context.Context, budgetID string) error {
	for id, tx := range t.transactions {
		if tx.BudgetID == budgetID {
			delete(t.transactions, id)
		}
	}
	return nil
}

func (t *tables) ListTransactionsSince(_ context.Context, userID string, cutoff time.Time) ([]core.BudgetTransaction, error) {
	out := []core.BudgetTransaction{}
	for _, tx := range t.transactions {
		b, ok := t.budgets[tx.BudgetID]
		if !ok || b.UserID != userID || tx.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, core.BudgetTransaction{Transaction: tx, BudgetName: b.Name})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
