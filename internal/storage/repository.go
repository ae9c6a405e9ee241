package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"budgets/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// SQLiteRepository is the durable Store backed by a single SQLite file.
type SQLiteRepository struct {
	*queries
	db *sql.DB
}

func dsn(dbPath string) string {
	// _txlock=immediate takes the write lock at BEGIN so read-then-write
	// transactions never interleave with another writer.
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{queries: &queries{db: db}, db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapErr(err))
	}
	if err := fn(&queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapErr(err))
	}
	return nil
}

// mapErr translates driver errors into the core error kinds.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", core.ErrConflict, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %w", core.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
}

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (q *queries) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	var (
		u       core.User
		created int64
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, email, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &created)
	if err != nil {
		return core.User{}, fmt.Errorf("find user %s: %w", email, mapErr(err))
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (q *queries) InsertUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Email, toNanos(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

const budgetColumns = `id, user_id, name, amount_cents, emoji, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBudget(s scanner) (core.Budget, error) {
	var (
		b       core.Budget
		created int64
	)
	if err := s.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount.Cents, &b.Emoji, &created); err != nil {
		return core.Budget{}, err
	}
	b.CreatedAt = fromNanos(created)
	return b, nil
}

func (q *queries) FindBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(q.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if err != nil {
		return core.Budget{}, fmt.Errorf("find budget %s: %w", id, mapErr(err))
	}
	return b, nil
}

func (q *queries) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", mapErr(err))
	}
	defer rows.Close()

	budgets := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", mapErr(err))
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", mapErr(err))
	}
	return budgets, nil
}

func (q *queries) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Amount.Cents, b.Emoji, toNanos(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert budget: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeleteBudget(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget %s: %w", id, mapErr(err))
	}
	return requireAffected(res, "budget", id)
}

const transactionColumns = `id, budget_id, amount_cents, description, emoji, created_at`

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		created int64
	)
	if err := s.Scan(&t.ID, &t.BudgetID, &t.Amount.Cents, &t.Description, &t.Emoji, &created); err != nil {
		return core.Transaction{}, err
	}
	t.CreatedAt = fromNanos(created)
	return t, nil
}

func (q *queries) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction %s: %w", id, mapErr(err))
	}
	return t, nil
}

func (q *queries) ListTransactions(ctx context.Context, budgetID string) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE budget_id = ? ORDER BY created_at, id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapErr(err))
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", mapErr(err))
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", mapErr(err))
	}
	return txs, nil
}

func (q *queries) SumTransactions(ctx context.Context, budgetID string) (core.Money, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE budget_id = ?`, budgetID,
	).Scan(&total)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", mapErr(err))
	}
	return core.Money{Cents: total}, nil
}

func (q *queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.BudgetID, t.Amount.Cents, t.Description, t.Emoji, toNanos(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, mapErr(err))
	}
	return requireAffected(res, "transaction", id)
}

func (q *queries) DeleteTransactionsByBudget(ctx context.Context, budgetID string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE budget_id = ?`, budgetID); err != nil {
		return fmt.Errorf("delete transactions of budget %s: %w", budgetID, mapErr(err))
	}
	return nil
}

func (q *queries) ListTransactionsSince(ctx context.Context, userID string, cutoff time.Time) ([]core.BudgetTransaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.id, t.budget_id, t.amount_cents, t.description, t.emoji, t.created_at, b.name
		FROM transactions t
		JOIN budgets b ON b.id = t.budget_id
		WHERE b.user_id = ? AND t.created_at >= ?
		ORDER BY t.created_at DESC, t.id DESC`,
		userID, toNanos(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list transactions since: %w", mapErr(err))
	}
	defer rows.Close()

	out := []core.BudgetTransaction{}
	for rows.Next() {
		var (
			bt      core.BudgetTransaction
			created int64
		)
		if err := rows.Scan(&bt.ID, &bt.BudgetID, &bt.Amount.Cents, &bt.Description, &bt.Emoji, &created, &bt.BudgetName); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", mapErr(err))
		}
		bt.CreatedAt = fromNanos(created)
		out = append(out, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", mapErr(err))
	}
	return out, nil
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}
