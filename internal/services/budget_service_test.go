package services

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"budgets/internal/amqp"
	"budgets/internal/cache"
	"budgets/internal/core"
	sheetsmemory "budgets/internal/sheets/memory"
	"budgets/internal/storage"
	"budgets/internal/storage/memory"
	"budgets/internal/worker"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// stepClock returns a time one second later on every call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var stores = []struct {
	name string
	open func(t *testing.T) storage.Store
}{
	{"memory", func(t *testing.T) storage.Store { return memory.New() }},
	{"sqlite", func(t *testing.T) storage.Store {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "budgets.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		return repo
	}},
}

type fixture struct {
	svc   *BudgetService
	pub   *recordingPublisher
	clock *stepClock
}

func forEachStore(t *testing.T, fn func(t *testing.T, f fixture)) {
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			store := st.open(t)
			t.Cleanup(func() { store.Close() })
			f := fixture{
				pub:   &recordingPublisher{},
				clock: &stepClock{t: time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)},
			}
			f.svc = NewBudgetService(store,
				WithPublisher(f.pub),
				WithClock(f.clock.now),
				WithOverviewCache(cache.NewOverviewCache(10, time.Minute)),
			)
			fn(t, f)
		})
	}
}

func money(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseMoney(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return m
}

func TestGroceriesScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		if _, err := f.svc.EnsureUser(ctx, "ana@example.com"); err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		b, err := f.svc.CreateBudget(ctx, "ana@example.com", "Groceries", money(t, "200"), "🛒")
		if err != nil {
			t.Fatalf("create budget: %v", err)
		}

		first, err := f.svc.AddTransaction(ctx, b.ID, money(t, "50"), "market")
		if err != nil {
			t.Fatalf("add 50: %v", err)
		}
		if first.Emoji != "🛒" {
			t.Errorf("transaction should inherit budget emoji, got %q", first.Emoji)
		}

		if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "160"), "too much"); !errors.Is(err, core.ErrBudgetExceeded) {
			t.Fatalf("expected ErrBudgetExceeded, got %v", err)
		}

		got, err := f.svc.GetBudgetWithTransactions(ctx, b.ID)
		if err != nil {
			t.Fatalf("get budget: %v", err)
		}
		if got.Spent().Cents != 5000 || len(got.Transactions) != 1 {
			t.Fatalf("spent should remain 50, got %s over %d transactions", got.Spent(), len(got.Transactions))
		}

		if err := f.svc.DeleteBudget(ctx, b.ID); err != nil {
			t.Fatalf("delete budget: %v", err)
		}
		if _, err := f.svc.GetBudgetWithTransactions(ctx, b.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := f.svc.DeleteTransaction(ctx, first.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("transaction should be gone with its budget, got %v", err)
		}

		want := []amqp.EventType{amqp.EventBudgetCreated, amqp.EventTransactionCreated, amqp.EventTransactionDeleted, amqp.EventBudgetDeleted}
		gotTypes := f.pub.types()
		if len(gotTypes) != len(want) {
			t.Fatalf("events = %v, want %v", gotTypes, want)
		}
		for i := range want {
			if gotTypes[i] != want[i] {
				t.Fatalf("events = %v, want %v", gotTypes, want)
			}
		}
	})
}

func TestAddTransactionBoundary(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		b, err := f.svc.CreateBudget(ctx, "a@example.com", "Coffee", money(t, "1"), "")
		if err != nil {
			t.Fatalf("create budget: %v", err)
		}

		// Ten dimes land exactly on the target with no drift.
		for i := 0; i < 10; i++ {
			if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "0.10"), ""); err != nil {
				t.Fatalf("add dime %d: %v", i, err)
			}
		}
		if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "0.01"), ""); !errors.Is(err, core.ErrBudgetExceeded) {
			t.Fatalf("expected ErrBudgetExceeded past the target, got %v", err)
		}

		ratio, err := f.svc.ReachedBudgetsRatio(ctx, "a@example.com")
		if err != nil || ratio != "1/1" {
			t.Fatalf("ratio = %q, %v; want 1/1", ratio, err)
		}
	})
}

func TestAddTransactionHugeAmounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		b, err := f.svc.CreateBudget(ctx, "a@example.com", "Rent", money(t, "200"), "")
		if err != nil {
			t.Fatalf("create budget: %v", err)
		}
		if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "50"), ""); err != nil {
			t.Fatalf("add: %v", err)
		}

		tests := []struct {
			name   string
			amount core.Money
			want   error
		}{
			{"max int64 cents", core.Money{Cents: math.MaxInt64}, core.ErrInvalidArgument},
			{"wraps past int64", core.Money{Cents: math.MaxInt64 - 4000}, core.ErrInvalidArgument},
			{"largest accepted amount", core.Money{Cents: core.MaxCents}, core.ErrBudgetExceeded},
		}
		for _, tt := range tests {
			if _, err := f.svc.AddTransaction(ctx, b.ID, tt.amount, ""); !errors.Is(err, tt.want) {
				t.Fatalf("%s: err = %v, want %v", tt.name, err, tt.want)
			}
		}

		got, err := f.svc.GetBudgetWithTransactions(ctx, b.ID)
		if err != nil {
			t.Fatalf("get budget: %v", err)
		}
		if len(got.Transactions) != 1 || got.Spent().Cents != 5000 {
			t.Fatalf("budget has %d transactions spending %s, want 1 spending 50.00", len(got.Transactions), got.Spent())
		}
		if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "150"), ""); err != nil {
			t.Fatalf("add remaining headroom: %v", err)
		}
	})
}

func TestCreateBudgetRejectsOversizedTarget(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		_, err := f.svc.CreateBudget(ctx, "a@example.com", "Moon", core.Money{Cents: core.MaxCents + 1}, "")
		if !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestAddTransactionValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		if _, err := f.svc.AddTransaction(ctx, "missing", money(t, "1"), ""); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.svc.AddTransaction(ctx, "missing", core.Money{}, ""); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for zero amount, got %v", err)
		}
		long := make([]rune, core.MaxDescriptionLength+1)
		for i := range long {
			long[i] = 'x'
		}
		if _, err := f.svc.AddTransaction(ctx, "missing", money(t, "1"), string(long)); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for long description, got %v", err)
		}
	})
}

func TestCreateBudgetRules(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()

		if _, err := f.svc.CreateBudget(ctx, "ghost@example.com", "Rent", money(t, "10"), ""); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
		}

		f.svc.EnsureUser(ctx, "a@example.com")
		f.svc.EnsureUser(ctx, "b@example.com")
		if _, err := f.svc.CreateBudget(ctx, "a@example.com", "Rent", money(t, "10"), "🏠"); err != nil {
			t.Fatalf("create budget: %v", err)
		}
		if _, err := f.svc.CreateBudget(ctx, "a@example.com", "  Rent ", money(t, "20"), ""); !errors.Is(err, core.ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
		}
		if _, err := f.svc.CreateBudget(ctx, "b@example.com", "Rent", money(t, "20"), ""); err != nil {
			t.Fatalf("same name for another user should succeed: %v", err)
		}
		if _, err := f.svc.CreateBudget(ctx, "a@example.com", "   ", money(t, "20"), ""); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for blank name, got %v", err)
		}
		if _, err := f.svc.CreateBudget(ctx, "a@example.com", "Fun", core.Money{Cents: -5}, ""); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for negative amount, got %v", err)
		}

		list, err := f.svc.ListBudgetsForUser(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("list budgets: %v", err)
		}
		if len(list) != 1 || list[0].Name != "Rent" || list[0].Emoji != "🏠" {
			t.Fatalf("expected exactly one Rent budget, got %+v", list)
		}
	})
}

func TestEnsureUserIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		first, err := f.svc.EnsureUser(ctx, "a@example.com")
		if err != nil {
			t.Fatalf("ensure user: %v", err)
		}
		second, err := f.svc.EnsureUser(ctx, "  a@example.com ")
		if err != nil {
			t.Fatalf("ensure user again: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("expected the same user, got %s and %s", first.ID, second.ID)
		}
		if _, err := f.svc.EnsureUser(ctx, " "); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument for blank email, got %v", err)
		}
	})
}

func TestEnsureUserConcurrent(t *testing.T) {
	svc := NewBudgetService(memory.New())
	ctx := context.Background()

	ids := make(chan string, 16)
	var wg sync.WaitGroup
	for i := 0; i < cap(ids); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := svc.EnsureUser(ctx, "a@example.com")
			if err != nil {
				t.Errorf("ensure user: %v", err)
				return
			}
			ids <- u.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("concurrent EnsureUser produced two users: %s and %s", first, id)
		}
	}
}

func TestDeleteBudgetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		if err := f.svc.DeleteBudget(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(f.pub.types()) != 0 {
			t.Fatalf("no event expected for a failed delete")
		}
	})
}

func TestDeleteTransaction(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		b, _ := f.svc.CreateBudget(ctx, "a@example.com", "Groceries", money(t, "100"), "🛒")
		tx, err := f.svc.AddTransaction(ctx, b.ID, money(t, "100"), "all of it")
		if err != nil {
			t.Fatalf("add transaction: %v", err)
		}

		if err := f.svc.DeleteTransaction(ctx, tx.ID); err != nil {
			t.Fatalf("delete transaction: %v", err)
		}
		// Headroom is back after the delete.
		if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, "100"), ""); err != nil {
			t.Fatalf("expected headroom after delete: %v", err)
		}
		if err := f.svc.DeleteTransaction(ctx, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}

		f.pub.mu.Lock()
		var deleted *amqp.Event
		for _, e := range f.pub.events {
			if e.Type == amqp.EventTransactionDeleted {
				deleted = e
			}
		}
		f.pub.mu.Unlock()
		if deleted == nil || deleted.AmountCents != 10000 || deleted.BudgetName != "Groceries" || deleted.TransactionID != tx.ID {
			t.Fatalf("unexpected delete event: %+v", deleted)
		}
	})
}

func TestDeleteBudgetOffsetsExportedLedger(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		b, _ := f.svc.CreateBudget(ctx, "a@example.com", "Groceries", money(t, "100"), "🛒")
		for _, amt := range []string{"12.30", "40", "7.70"} {
			if _, err := f.svc.AddTransaction(ctx, b.ID, money(t, amt), "shop"); err != nil {
				t.Fatalf("add %s: %v", amt, err)
			}
		}
		if err := f.svc.DeleteBudget(ctx, b.ID); err != nil {
			t.Fatalf("delete budget: %v", err)
		}

		f.pub.mu.Lock()
		events := append([]*amqp.Event(nil), f.pub.events...)
		f.pub.mu.Unlock()

		var deletes int
		for _, e := range events {
			if e.Type == amqp.EventTransactionDeleted {
				deletes++
				if e.BudgetID != b.ID || e.BudgetName != "Groceries" {
					t.Fatalf("unexpected delete event: %+v", e)
				}
			}
		}
		if deletes != 3 {
			t.Fatalf("got %d transaction.deleted events, want 3", deletes)
		}
		if last := events[len(events)-1]; last.Type != amqp.EventBudgetDeleted {
			t.Fatalf("last event = %s, want %s", last.Type, amqp.EventBudgetDeleted)
		}

		ledger := sheetsmemory.New()
		exporter := worker.NewExportWorker(ledger)
		for _, e := range events {
			if err := exporter.HandleEvent(ctx, e); err != nil {
				t.Fatalf("export %s: %v", e.Type, err)
			}
		}
		var net int64
		for _, r := range ledger.Rows() {
			net += r.Amount.Cents
		}
		if rows := len(ledger.Rows()); rows != 6 || net != 0 {
			t.Fatalf("ledger has %d rows netting %d cents, want 6 rows netting 0", rows, net)
		}
	})
}

func TestListTransactionsForUserInPeriod(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		groceries, _ := f.svc.CreateBudget(ctx, "a@example.com", "Groceries", money(t, "1000"), "🛒")
		travel, _ := f.svc.CreateBudget(ctx, "a@example.com", "Travel", money(t, "1000"), "✈️")

		now := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
		f.clock.set(now.Add(-10 * 24 * time.Hour))
		if _, err := f.svc.AddTransaction(ctx, groceries.ID, money(t, "1"), "old"); err != nil {
			t.Fatal(err)
		}
		f.clock.set(now.Add(-3 * 24 * time.Hour))
		mid, _ := f.svc.AddTransaction(ctx, travel.ID, money(t, "2"), "mid")
		f.clock.set(now.Add(-24 * time.Hour))
		recent, _ := f.svc.AddTransaction(ctx, groceries.ID, money(t, "3"), "recent")

		f.clock.set(now.Add(-time.Second)) // next call to now() returns `now`
		got, err := f.svc.ListTransactionsForUserInPeriod(ctx, "a@example.com", "last7")
		if err != nil {
			t.Fatalf("list last7: %v", err)
		}
		if len(got) != 2 || got[0].ID != recent.ID || got[1].ID != mid.ID {
			t.Fatalf("expected [recent, mid], got %+v", got)
		}
		if got[1].BudgetName != "Travel" || got[1].BudgetID != travel.ID {
			t.Fatalf("missing budget annotation: %+v", got[1])
		}

		f.clock.set(now.Add(-time.Second))
		all, err := f.svc.ListTransactionsForUserInPeriod(ctx, "a@example.com", "last30")
		if err != nil || len(all) != 3 {
			t.Fatalf("last30 = %d rows, %v; want 3", len(all), err)
		}

		if _, err := f.svc.ListTransactionsForUserInPeriod(ctx, "a@example.com", "last14"); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := f.svc.ListTransactionsForUserInPeriod(ctx, "ghost@example.com", "last7"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDashboardAccessors(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		email := "a@example.com"
		f.svc.EnsureUser(ctx, email)
		a, _ := f.svc.CreateBudget(ctx, email, "A", money(t, "10"), "")
		b, _ := f.svc.CreateBudget(ctx, email, "B", money(t, "10"), "")
		c, _ := f.svc.CreateBudget(ctx, email, "C", money(t, "10"), "")
		f.svc.AddTransaction(ctx, a.ID, money(t, "10"), "")
		f.svc.AddTransaction(ctx, b.ID, money(t, "4"), "")
		f.svc.AddTransaction(ctx, b.ID, money(t, "6"), "")
		f.svc.AddTransaction(ctx, c.ID, money(t, "9.99"), "")

		ratio, err := f.svc.ReachedBudgetsRatio(ctx, email)
		if err != nil || ratio != "2/3" {
			t.Fatalf("ratio = %q, %v; want 2/3", ratio, err)
		}
		total, _ := f.svc.TotalSpent(ctx, email)
		if total.Cents != 2999 {
			t.Fatalf("total = %d, want 2999", total.Cents)
		}
		count, _ := f.svc.TotalTransactionCount(ctx, email)
		if count != 4 {
			t.Fatalf("count = %d, want 4", count)
		}
		summaries, _ := f.svc.BudgetSummaries(ctx, email)
		if len(summaries) != 3 || summaries[1].SpentAmount.Cents != 1000 {
			t.Fatalf("unexpected summaries: %+v", summaries)
		}
		recentTx, _ := f.svc.RecentTransactions(ctx, email, 2)
		if len(recentTx) != 2 || recentTx[0].BudgetName != "C" {
			t.Fatalf("unexpected recent transactions: %+v", recentTx)
		}
		recentBudgets, _ := f.svc.RecentBudgets(ctx, email, 3)
		if len(recentBudgets) != 3 || recentBudgets[0].Name != "C" {
			t.Fatalf("unexpected recent budgets: %+v", recentBudgets)
		}

		ov, err := f.svc.Overview(ctx, email)
		if err != nil {
			t.Fatalf("overview: %v", err)
		}
		if ov.ReachedRatio != "2/3" || ov.TransactionCount != 4 {
			t.Fatalf("unexpected overview: %+v", ov)
		}

		// A write must invalidate the cached overview.
		if err := f.svc.DeleteBudget(ctx, a.ID); err != nil {
			t.Fatalf("delete budget: %v", err)
		}
		ov, _ = f.svc.Overview(ctx, email)
		if ov.ReachedRatio != "1/2" {
			t.Fatalf("stale overview after delete: %+v", ov)
		}

		if _, err := f.svc.Overview(ctx, "ghost@example.com"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestEmptyDashboard(t *testing.T) {
	svc := NewBudgetService(memory.New())
	ctx := context.Background()
	svc.EnsureUser(ctx, "a@example.com")

	ratio, err := svc.ReachedBudgetsRatio(ctx, "a@example.com")
	if err != nil || ratio != "0/0" {
		t.Fatalf("ratio = %q, %v; want 0/0", ratio, err)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewBudgetService(memory.New(), WithPublisher(pub))
	ctx := context.Background()
	svc.EnsureUser(ctx, "a@example.com")

	b, err := svc.CreateBudget(ctx, "a@example.com", "Rent", core.Money{Cents: 100}, "")
	if err != nil {
		t.Fatalf("create budget should succeed despite publish failure: %v", err)
	}
	if _, err := svc.GetBudgetWithTransactions(ctx, b.ID); err != nil {
		t.Fatalf("budget should be stored: %v", err)
	}
}

func TestConcurrentAddTransactionNeverOvershoots(t *testing.T) {
	forEachStore(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.svc.EnsureUser(ctx, "a@example.com")
		b, _ := f.svc.CreateBudget(ctx, "a@example.com", "Shared", money(t, "5"), "")
		one := money(t, "1")

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.AddTransaction(ctx, b.ID, one, "")
				if err != nil && !errors.Is(err, core.ErrBudgetExceeded) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		got, err := f.svc.GetBudgetWithTransactions(ctx, b.ID)
		if err != nil {
			t.Fatalf("get budget: %v", err)
		}
		if got.Spent().Cents != 500 {
			t.Fatalf("spent = %s, want exactly 5.00", got.Spent())
		}
	})
}
