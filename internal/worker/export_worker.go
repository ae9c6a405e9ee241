package worker

import (
	"context"
	"fmt"
	"log/slog"

	"budgets/internal/amqp"
	"budgets/internal/core"
	"budgets/internal/sheets"
)

// ExportWorker mirrors transaction events into an append-only ledger.
type ExportWorker struct {
	ledger sheets.LedgerWriter
}

func NewExportWorker(ledger sheets.LedgerWriter) *ExportWorker {
	return &ExportWorker{ledger: ledger}
}

// HandleEvent exports one event. A returned error means the event should be
// redelivered.
func (w *ExportWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	switch e.Type {
	case amqp.EventTransactionCreated:
		return w.export(ctx, e, e.AmountCents)
	case amqp.EventTransactionDeleted:
		return w.export(ctx, e, -e.AmountCents)
	case amqp.EventBudgetCreated, amqp.EventBudgetDeleted:
		slog.InfoContext(ctx, "Budget event received",
			"type", e.Type,
			"budget_id", e.BudgetID,
			"budget", e.BudgetName)
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring unknown event type", "type", e.Type, "event_id", e.ID)
		return nil
	}
}

func (w *ExportWorker) export(ctx context.Context, e *amqp.Event, cents int64) error {
	row := sheets.LedgerRow{
		Date:        e.Timestamp,
		Budget:      e.BudgetName,
		Description: e.Description,
		Emoji:       e.Emoji,
		Amount:      core.Money{Cents: cents},
		Event:       string(e.Type),
	}

	ref, err := w.ledger.AppendRow(ctx, row)
	if err != nil {
		return fmt.Errorf("export transaction %s: %w", e.TransactionID, err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		"transaction_id", e.TransactionID,
		"type", e.Type,
		"amount_cents", cents,
		"ref", ref)
	return nil
}
