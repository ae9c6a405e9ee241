package core

import (
	"fmt"
	"time"
)

// Period selects a relative time window for transaction listings.
type Period string

const (
	Last7   Period = "last7"
	Last30  Period = "last30"
	Last90  Period = "last90"
	Last365 Period = "last365"
)

// Periods lists every accepted selector.
func Periods() []Period {
	return []Period{Last7, Last30, Last90, Last365}
}

// ParsePeriod validates a selector string. Only the exact tokens are accepted.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	switch p {
	case Last7, Last30, Last90, Last365:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidArgument, s)
	}
}

// Cutoff returns the earliest creation time included in the window ending at now.
// last30 and last365 step back by calendar month and year.
func (p Period) Cutoff(now time.Time) (time.Time, error) {
	switch p {
	case Last7:
		return now.AddDate(0, 0, -7), nil
	case Last30:
		return now.AddDate(0, -1, 0), nil
	case Last90:
		return now.AddDate(0, 0, -90), nil
	case Last365:
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown period %q", ErrInvalidArgument, string(p))
	}
}

func (p Period) String() string {
	return string(p)
}
