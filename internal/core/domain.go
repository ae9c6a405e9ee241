package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxBudgetNameLength  = 100
	MaxDescriptionLength = 200
)

type (
	User struct {
		ID        string
		Email     string
		CreatedAt time.Time
	}

	Budget struct {
		ID        string
		UserID    string
		Name      string
		Amount    Money
		Emoji     string
		CreatedAt time.Time
	}

	// Transaction is a single expense recorded against a budget. Emoji is
	// copied from the budget when the transaction is created and is never
	// re-synced afterwards.
	Transaction struct {
		ID          string
		BudgetID    string
		Amount      Money
		Description string
		Emoji       string
		CreatedAt   time.Time
	}

	BudgetWithTransactions struct {
		Budget
		Transactions []Transaction
	}

	// BudgetTransaction is a transaction annotated with its parent budget.
	BudgetTransaction struct {
		Transaction
		BudgetName string
	}
)

// NewID returns a fresh identifier for users, budgets and transactions.
func NewID() string {
	return uuid.NewString()
}

// Spent returns the sum of the budget's transaction amounts.
func (b BudgetWithTransactions) Spent() Money {
	var total Money
	for _, t := range b.Transactions {
		total = total.Add(t.Amount)
	}
	return total
}

// Reached reports whether the spent amount has met or exceeded the target.
func (b BudgetWithTransactions) Reached() bool {
	return b.Spent().Cents >= b.Amount.Cents
}

// Remaining returns the headroom left before the target is hit, never negative.
func (b BudgetWithTransactions) Remaining() Money {
	left := b.Amount.Sub(b.Spent())
	if left.Cents < 0 {
		return Money{}
	}
	return left
}

// NormalizeEmail trims surrounding whitespace and rejects empty addresses.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrInvalidArgument)
	}
	return email, nil
}

func (b Budget) Validate() error {
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return fmt.Errorf("%w: empty budget name", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > MaxBudgetNameLength {
		return fmt.Errorf("%w: budget name too long (max %d characters)", ErrInvalidArgument, MaxBudgetNameLength)
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrInvalidArgument, MaxDescriptionLength)
	}
	return nil
}
