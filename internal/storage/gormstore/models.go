package gormstore

import (
	"time"

	"budgets/internal/core"
)

// Timestamps are kept as Unix nanoseconds, same as the SQL migrations, so a
// database file is readable by either backend.

type userModel struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"not null;uniqueIndex"`
	CreatedNs int64  `gorm:"column:created_at;not null"`
}

func (userModel) TableName() string { return "users" }

type budgetModel struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"not null;uniqueIndex:idx_budgets_user_name"`
	Name        string `gorm:"not null;uniqueIndex:idx_budgets_user_name"`
	AmountCents int64  `gorm:"not null"`
	Emoji       string `gorm:"not null;default:''"`
	CreatedNs   int64  `gorm:"column:created_at;not null;index"`
}

func (budgetModel) TableName() string { return "budgets" }

type transactionModel struct {
	ID          string `gorm:"primaryKey"`
	BudgetID    string `gorm:"not null;index"`
	AmountCents int64  `gorm:"not null"`
	Description string `gorm:"not null;default:''"`
	Emoji       string `gorm:"not null;default:''"`
	CreatedNs   int64  `gorm:"column:created_at;not null;index"`
}

func (transactionModel) TableName() string { return "transactions" }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func userFromModel(m userModel) core.User {
	return core.User{ID: m.ID, Email: m.Email, CreatedAt: fromNanos(m.CreatedNs)}
}

func budgetFromModel(m budgetModel) core.Budget {
	return core.Budget{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		Amount:    core.Money{Cents: m.AmountCents},
		Emoji:     m.Emoji,
		CreatedAt: fromNanos(m.CreatedNs),
	}
}

func budgetToModel(b core.Budget) budgetModel {
	return budgetModel{
		ID:          b.ID,
		UserID:      b.UserID,
		Name:        b.Name,
		AmountCents: b.Amount.Cents,
		Emoji:       b.Emoji,
		CreatedNs:   b.CreatedAt.UTC().UnixNano(),
	}
}

func transactionFromModel(m transactionModel) core.Transaction {
	return core.Transaction{
		ID:          m.ID,
		BudgetID:    m.BudgetID,
		Amount:      core.Money{Cents: m.AmountCents},
		Description: m.Description,
		Emoji:       m.Emoji,
		CreatedAt:   fromNanos(m.CreatedNs),
	}
}

func transactionToModel(t core.Transaction) transactionModel {
	return transactionModel{
		ID:          t.ID,
		BudgetID:    t.BudgetID,
		AmountCents: t.Amount.Cents,
		Description: t.Description,
		Emoji:       t.Emoji,
		CreatedNs:   t.CreatedAt.UTC().UnixNano(),
	}
}
