// Package gormstore implements storage.Store on top of gorm and the
// gorm SQLite driver.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"budgets/internal/core"
	"budgets/internal/storage"
)

type Store struct {
	*queries
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

type queries struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if err := ensureDirForSQLite(path); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stderr, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&userModel{}, &budgetModel{}, &transactionModel{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{queries: &queries{db: db}, db: db}, nil
}

// ensureDirForSQLite creates the parent directory of a file DSN.
func ensureDirForSQLite(path string) error {
	if strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory") {
		return nil
	}
	dir := filepath.Dir(strings.TrimPrefix(path, "file:"))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(q storage.Queries) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&queries{db: tx})
	})
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return core.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %w", core.ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (core.User, error) {
	var m userModel
	if err := q.db.WithContext(ctx).Where("email = ?", email).First(&m).Error; err != nil {
		return core.User{}, fmt.Errorf("find user %s: %w", email, mapErr(err))
	}
	return userFromModel(m), nil
}

func (q *queries) InsertUser(ctx context.Context, u core.User) error {
	m := userModel{ID: u.ID, Email: u.Email, CreatedNs: u.CreatedAt.UTC().UnixNano()}
	if err := q.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

func (q *queries) FindBudget(ctx context.Context, id string) (core.Budget, error) {
	var m budgetModel
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return core.Budget{}, fmt.Errorf("find budget %s: %w", id, mapErr(err))
	}
	return budgetFromModel(m), nil
}

func (q *queries) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	var rows []budgetModel
	err := q.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", mapErr(err))
	}
	out := make([]core.Budget, 0, len(rows))
	for _, m := range rows {
		out = append(out, budgetFromModel(m))
	}
	return out, nil
}

func (q *queries) InsertBudget(ctx context.Context, b core.Budget) error {
	// AutoMigrate does not declare the users foreign key, so check it here.
	var n int64
	if err := q.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", b.UserID).Count(&n).Error; err != nil {
		return fmt.Errorf("insert budget: %w", mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("insert budget: user %s: %w", b.UserID, core.ErrNotFound)
	}
	m := budgetToModel(b)
	if err := q.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert budget: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeleteBudget(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("budget_id = ?", id).Delete(&transactionModel{}).Error; err != nil {
			return fmt.Errorf("delete transactions of budget %s: %w", id, mapErr(err))
		}
		res := tx.Where("id = ?", id).Delete(&budgetModel{})
		if res.Error != nil {
			return fmt.Errorf("delete budget %s: %w", id, mapErr(res.Error))
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
		}
		return nil
	})
}

func (q *queries) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var m transactionModel
	if err := q.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction %s: %w", id, mapErr(err))
	}
	return transactionFromModel(m), nil
}

func (q *queries) ListTransactions(ctx context.Context, budgetID string) ([]core.Transaction, error) {
	var rows []transactionModel
	err := q.db.WithContext(ctx).
		Where("budget_id = ?", budgetID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapErr(err))
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, m := range rows {
		out = append(out, transactionFromModel(m))
	}
	return out, nil
}

func (q *queries) SumTransactions(ctx context.Context, budgetID string) (core.Money, error) {
	var total int64
	err := q.db.WithContext(ctx).
		Model(&transactionModel{}).
		Where("budget_id = ?", budgetID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	if err != nil {
		return core.Money{}, fmt.Errorf("sum transactions: %w", mapErr(err))
	}
	return core.Money{Cents: total}, nil
}

func (q *queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	var n int64
	if err := q.db.WithContext(ctx).Model(&budgetModel{}).Where("id = ?", t.BudgetID).Count(&n).Error; err != nil {
		return fmt.Errorf("insert transaction: %w", mapErr(err))
	}
	if n == 0 {
		return fmt.Errorf("insert transaction: budget %s: %w", t.BudgetID, core.ErrNotFound)
	}
	m := transactionToModel(t)
	if err := q.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("insert transaction: %w", mapErr(err))
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	res := q.db.WithContext(ctx).Where("id = ?", id).Delete(&transactionModel{})
	if res.Error != nil {
		return fmt.Errorf("delete transaction %s: %w", id, mapErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteTransactionsByBudget(ctx context.Context, budgetID string) error {
	if err := q.db.WithContext(ctx).Where("budget_id = ?", budgetID).Delete(&transactionModel{}).Error; err != nil {
		return fmt.Errorf("delete transactions of budget %s: %w", budgetID, mapErr(err))
	}
	return nil
}

type budgetTransactionRow struct {
	transactionModel
	BudgetName string
}

func (q *queries) ListTransactionsSince(ctx context.Context, userID string, cutoff time.Time) ([]core.BudgetTransaction, error) {
	var rows []budgetTransactionRow
	err := q.db.WithContext(ctx).
		Table("transactions AS t").
		Select("t.id, t.budget_id, t.amount_cents, t.description, t.emoji, t.created_at, b.name AS budget_name").
		Joins("JOIN budgets AS b ON b.id = t.budget_id").
		Where("b.user_id = ? AND t.created_at >= ?", userID, cutoff.UTC().UnixNano()).
		Order("t.created_at DESC, t.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions since: %w", mapErr(err))
	}
	out := make([]core.BudgetTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.BudgetTransaction{
			Transaction: transactionFromModel(r.transactionModel),
			BudgetName:  r.BudgetName,
		})
	}
	return out, nil
}
