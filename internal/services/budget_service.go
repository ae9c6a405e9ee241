package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"budgets/internal/amqp"
	"budgets/internal/cache"
	"budgets/internal/core"
	"budgets/internal/dashboard"
	"budgets/internal/storage"
)

// EventPublisher announces committed changes. *amqp.Client implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *amqp.Event) error
}

// BudgetService enforces the budget rules on top of a Store and fans out
// change events once a write has committed.
type BudgetService struct {
	store     storage.Store
	publisher EventPublisher
	overviews *cache.OverviewCache
	now       func() time.Time
}

type Option func(*BudgetService)

// WithPublisher enables event publishing. A nil publisher is ignored.
func WithPublisher(p EventPublisher) Option {
	return func(s *BudgetService) { s.publisher = p }
}

// WithOverviewCache memoizes Overview results per user.
func WithOverviewCache(c *cache.OverviewCache) Option {
	return func(s *BudgetService) { s.overviews = c }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *BudgetService) { s.now = now }
}

func NewBudgetService(store storage.Store, opts ...Option) *BudgetService {
	s := &BudgetService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureUser returns the user registered under email, creating it first if
// needed. Calling it repeatedly is safe.
func (s *BudgetService) EnsureUser(ctx context.Context, email string) (core.User, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}

	u, err := s.store.FindUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.User{}, fmt.Errorf("ensure user: %w", err)
	}

	u = core.User{ID: core.NewID(), Email: email, CreatedAt: s.now().UTC()}
	if err := s.store.InsertUser(ctx, u); err != nil {
		if !errors.Is(err, core.ErrConflict) {
			return core.User{}, fmt.Errorf("ensure user: %w", err)
		}
		// Lost a creation race; the other writer's row is the user.
		existing, findErr := s.store.FindUserByEmail(ctx, email)
		if findErr != nil {
			return core.User{}, fmt.Errorf("ensure user: %w", findErr)
		}
		return existing, nil
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return u, nil
}

func (s *BudgetService) findUser(ctx context.Context, email string) (core.User, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	return s.store.FindUserByEmail(ctx, email)
}

// CreateBudget adds a budget for the user owning email. Names are trimmed and
// must be unique per user.
func (s *BudgetService) CreateBudget(ctx context.Context, email, name string, amount core.Money, emoji string) (core.Budget, error) {
	b := core.Budget{
		ID:     core.NewID(),
		Name:   strings.TrimSpace(name),
		Amount: amount,
		Emoji:  strings.TrimSpace(emoji),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}

	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		u, err := s.findUserIn(ctx, q, email)
		if err != nil {
			return err
		}
		existing, err := q.ListBudgets(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Name == b.Name {
				return fmt.Errorf("%w: budget %q already exists", core.ErrConflict, b.Name)
			}
		}
		b.UserID = u.ID
		b.CreatedAt = s.now().UTC()
		return q.InsertBudget(ctx, b)
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget created",
		"budget_id", b.ID,
		"user_id", b.UserID,
		"amount_cents", b.Amount.Cents)

	s.invalidate(b.UserID)
	e := amqp.NewEvent(amqp.EventBudgetCreated, b.CreatedAt)
	e.UserID, e.BudgetID, e.BudgetName, e.AmountCents, e.Emoji = b.UserID, b.ID, b.Name, b.Amount.Cents, b.Emoji
	s.publish(ctx, e)

	return b, nil
}

func (s *BudgetService) findUserIn(ctx context.Context, q storage.Queries, email string) (core.User, error) {
	email, err := core.NormalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	return q.FindUserByEmail(ctx, email)
}

// ListBudgetsForUser returns every budget of the user with its transactions.
func (s *BudgetService) ListBudgetsForUser(ctx context.Context, email string) ([]core.BudgetWithTransactions, error) {
	u, err := s.findUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out, err := s.snapshot(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

func (s *BudgetService) snapshot(ctx context.Context, userID string) ([]core.BudgetWithTransactions, error) {
	budgets, err := s.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.BudgetWithTransactions, 0, len(budgets))
	for _, b := range budgets {
		txs, err := s.store.ListTransactions(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, core.BudgetWithTransactions{Budget: b, Transactions: txs})
	}
	return out, nil
}

func (s *BudgetService) GetBudgetWithTransactions(ctx context.Context, budgetID string) (core.BudgetWithTransactions, error) {
	b, err := s.store.FindBudget(ctx, budgetID)
	if err != nil {
		return core.BudgetWithTransactions{}, fmt.Errorf("get budget: %w", err)
	}
	txs, err := s.store.ListTransactions(ctx, b.ID)
	if err != nil {
		return core.BudgetWithTransactions{}, fmt.Errorf("get budget: %w", err)
	}
	return core.BudgetWithTransactions{Budget: b, Transactions: txs}, nil
}

// AddTransaction records an expense against a budget. It fails with
// core.ErrBudgetExceeded, writing nothing, when the new total would pass the
// budget's target. The check and the insert share one store transaction.
func (s *BudgetService) AddTransaction(ctx context.Context, budgetID string, amount core.Money, description string) (core.Transaction, error) {
	t := core.Transaction{
		ID:          core.NewID(),
		BudgetID:    budgetID,
		Amount:      amount,
		Description: strings.TrimSpace(description),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var budget core.Budget
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		b, err := q.FindBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		spent, err := q.SumTransactions(ctx, budgetID)
		if err != nil {
			return err
		}
		// spent never passes the target, so the remaining headroom cannot overflow.
		if amount.Cents > b.Amount.Cents-spent.Cents {
			return fmt.Errorf("%w: spent %s + %s > %s", core.ErrBudgetExceeded, spent, amount, b.Amount)
		}
		budget = b
		t.Emoji = b.Emoji
		t.CreatedAt = s.now().UTC()
		return q.InsertTransaction(ctx, t)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"transaction_id", t.ID,
		"budget_id", t.BudgetID,
		"amount_cents", t.Amount.Cents)

	s.invalidate(budget.UserID)
	s.publish(ctx, transactionEvent(amqp.EventTransactionCreated, budget, t, t.CreatedAt))

	return t, nil
}

// DeleteBudget removes the budget and all of its transactions atomically.
// Each removed transaction is announced with its own transaction.deleted
// event before the budget.deleted event, so exported ledgers net to zero.
func (s *BudgetService) DeleteBudget(ctx context.Context, budgetID string) error {
	var (
		budget  core.Budget
		removed []core.Transaction
	)
	err := s.store.WithTx(ctx, func(q storage.Queries) error {
		b, err := q.FindBudget(ctx, budgetID)
		if err != nil {
			return err
		}
		budget = b
		if removed, err = q.ListTransactions(ctx, budgetID); err != nil {
			return err
		}
		if err := q.DeleteTransactionsByBudget(ctx, budgetID); err != nil {
			return err
		}
		return q.DeleteBudget(ctx, budgetID)
	})
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget deleted",
		"budget_id", budgetID,
		"user_id", budget.UserID,
		"transactions_removed", len(removed))

	s.invalidate(budget.UserID)
	at := s.now().UTC()
	for _, t := range removed {
		s.publish(ctx, transactionEvent(amqp.EventTransactionDeleted, budget, t, at))
	}
	e := amqp.NewEvent(amqp.EventBudgetDeleted, at)
	e.UserID, e.BudgetID, e.BudgetName, e.Emoji = budget.UserID, budget.ID, budget.Name, budget.Emoji
	s.publish(ctx, e)

	return nil
}

// DeleteTransaction removes a single transaction.
func (s *BudgetService) DeleteTransaction(ctx context.Context, transactionID string) error {
	t, err := s.store.FindTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := s.store.DeleteTransaction(ctx, transactionID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", t.ID, "budget_id", t.BudgetID)

	// The parent budget only feeds the event and cache key; it may be gone.
	b, err := s.store.FindBudget(ctx, t.BudgetID)
	if err != nil {
		slog.WarnContext(ctx, "Parent budget not found for deleted transaction",
			"transaction_id", t.ID,
			"budget_id", t.BudgetID,
			"error", err)
		b = core.Budget{ID: t.BudgetID}
	}
	s.invalidate(b.UserID)
	s.publish(ctx, transactionEvent(amqp.EventTransactionDeleted, b, t, s.now().UTC()))

	return nil
}

// ListTransactionsForUserInPeriod returns the user's transactions created on
// or after the period's cutoff, newest first.
func (s *BudgetService) ListTransactionsForUserInPeriod(ctx context.Context, email, period string) ([]core.BudgetTransaction, error) {
	p, err := core.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	cutoff, err := p.Cutoff(s.now().UTC())
	if err != nil {
		return nil, err
	}
	u, err := s.findUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := s.store.ListTransactionsSince(ctx, u.ID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *BudgetService) userSnapshot(ctx context.Context, email string) ([]core.BudgetWithTransactions, error) {
	u, err := s.findUser(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}
	snap, err := s.snapshot(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}
	return snap, nil
}

func (s *BudgetService) TotalSpent(ctx context.Context, email string) (core.Money, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return core.Money{}, err
	}
	return dashboard.TotalSpent(snap), nil
}

func (s *BudgetService) TotalTransactionCount(ctx context.Context, email string) (int, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return 0, err
	}
	return dashboard.TransactionCount(snap), nil
}

func (s *BudgetService) ReachedBudgetsRatio(ctx context.Context, email string) (string, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return "", err
	}
	return dashboard.ReachedRatio(snap), nil
}

func (s *BudgetService) BudgetSummaries(ctx context.Context, email string) ([]core.BudgetSummary, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return nil, err
	}
	return dashboard.Summaries(snap), nil
}

func (s *BudgetService) RecentTransactions(ctx context.Context, email string, limit int) ([]core.BudgetTransaction, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return nil, err
	}
	return dashboard.RecentTransactions(snap, limit), nil
}

func (s *BudgetService) RecentBudgets(ctx context.Context, email string, limit int) ([]core.BudgetWithTransactions, error) {
	snap, err := s.userSnapshot(ctx, email)
	if err != nil {
		return nil, err
	}
	return dashboard.RecentBudgets(snap, limit), nil
}

// Overview builds the full dashboard, served from the overview cache when
// one is configured.
func (s *BudgetService) Overview(ctx context.Context, email string) (core.Overview, error) {
	u, err := s.findUser(ctx, email)
	if err != nil {
		return core.Overview{}, fmt.Errorf("load dashboard: %w", err)
	}
	build := func(ctx context.Context) (core.Overview, error) {
		snap, err := s.snapshot(ctx, u.ID)
		if err != nil {
			return core.Overview{}, fmt.Errorf("load dashboard: %w", err)
		}
		return dashboard.Build(snap), nil
	}
	if s.overviews == nil {
		return build(ctx)
	}
	return s.overviews.Load(ctx, u.ID, build)
}

// Ping reports whether the store is reachable.
func (s *BudgetService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *BudgetService) invalidate(userID string) {
	if s.overviews != nil && userID != "" {
		s.overviews.Invalidate(userID)
	}
}

func (s *BudgetService) publish(ctx context.Context, e *amqp.Event) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping event", "type", e.Type)
		return
	}
	if err := s.publisher.PublishEvent(ctx, e); err != nil {
		// The write already committed; losing the event only delays export.
		slog.ErrorContext(ctx, "Failed to publish event",
			"type", e.Type,
			"event_id", e.ID,
			"error", err)
	}
}

func transactionEvent(typ amqp.EventType, b core.Budget, t core.Transaction, at time.Time) *amqp.Event {
	e := amqp.NewEvent(typ, at)
	e.UserID = b.UserID
	e.BudgetID = t.BudgetID
	e.BudgetName = b.Name
	e.TransactionID = t.ID
	e.AmountCents = t.Amount.Cents
	e.Description = t.Description
	e.Emoji = t.Emoji
	return e
}
