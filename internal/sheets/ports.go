package sheets

import (
	"context"
	"time"

	"budgets/internal/core"
)

// LedgerRow is one exported line of the spending ledger. Deletions are
// exported as rows with a negative amount so the ledger stays append-only.
type LedgerRow struct {
	Date        time.Time
	Budget      string
	Description string
	Emoji       string
	Amount      core.Money
	Event       string
}

// LedgerHeader names the exported columns in order.
var LedgerHeader = []string{"date", "budget", "description", "emoji", "amount", "event"}

// LedgerWriter appends rows to an external ledger.
type LedgerWriter interface {
	AppendRow(ctx context.Context, row LedgerRow) (rowRef string, err error)
}
