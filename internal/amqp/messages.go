package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBudgetCreated      EventType = "budget.created"
	EventBudgetDeleted      EventType = "budget.deleted"
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionDeleted EventType = "transaction.deleted"
)

func (t EventType) Valid() bool {
	switch t {
	case EventBudgetCreated, EventBudgetDeleted, EventTransactionCreated, EventTransactionDeleted:
		return true
	}
	return false
}

// Event describes a committed change. Transaction events carry enough of the
// transaction and its budget that consumers never need to read the store.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	BudgetID      string    `json:"budget_id"`
	BudgetName    string    `json:"budget_name,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AmountCents   int64     `json:"amount_cents,omitempty"`
	Description   string    `json:"description,omitempty"`
	Emoji         string    `json:"emoji,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(t EventType, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: at,
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects unknown types.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return &e, nil
}
