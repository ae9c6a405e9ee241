package google

import (
	"budgets/internal/sheets"
)

const dateLayout = "2006-01-02"

// rowValues renders a ledger row in LedgerHeader column order. Amounts are
// written as decimal strings so USER_ENTERED input parses them as numbers
// without float rounding.
func rowValues(r sheets.LedgerRow) []any {
	return []any{
		r.Date.UTC().Format(dateLayout),
		r.Budget,
		r.Description,
		r.Emoji,
		r.Amount.String(),
		r.Event,
	}
}

func headerValues() []any {
	out := make([]any, len(sheets.LedgerHeader))
	for i, h := range sheets.LedgerHeader {
		out[i] = h
	}
	return out
}

// columnRange returns the A1 range spanning every ledger column of sheet.
func columnRange(sheet string) string {
	last := rune('A' + len(sheets.LedgerHeader) - 1)
	return sheet + "!A:" + string(last)
}
