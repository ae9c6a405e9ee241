package memory

import (
	"context"
	"testing"
	"time"

	"budgets/internal/core"
	"budgets/internal/sheets"
)

func TestLedgerAppendAndRows(t *testing.T) {
	l := New()
	ctx := context.Background()

	ref, err := l.AppendRow(ctx, sheets.LedgerRow{
		Date:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Budget: "Groceries",
		Amount: core.Money{Cents: 5000},
		Event:  "transaction.created",
	})
	if err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("unexpected ref %q", ref)
	}

	rows := l.Rows()
	if len(rows) != 1 || rows[0].Budget != "Groceries" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	// Callers get a copy.
	rows[0].Budget = "changed"
	if l.Rows()[0].Budget != "Groceries" {
		t.Fatal("Rows should not expose internal state")
	}
}
