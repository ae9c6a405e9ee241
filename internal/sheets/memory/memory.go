package memory

import (
	"context"
	"fmt"
	"sync"

	"budgets/internal/sheets"
)

// Ledger keeps exported rows in memory. Used when no spreadsheet is
// configured and in tests.
type Ledger struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var _ sheets.LedgerWriter = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (l *Ledger) AppendRow(_ context.Context, row sheets.LedgerRow) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (l *Ledger) Rows() []sheets.LedgerRow {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerRow(nil), l.rows...)
}
