package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintraka/internal/core"
)

// EventKind names the mutation a TransactionEvent describes.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// TransactionEvent carries enough of the row for a consumer to mirror it
// without reading the database.
type TransactionEvent struct {
	Event         EventKind `json:"event"`
	TransactionID int64     `json:"transaction_id"`
	OwnerID       int64     `json:"owner_id"`
	Type          string    `json:"type,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Date          string    `json:"date,omitempty"`
	CategoryName  string    `json:"category_name,omitempty"`
	Description   string    `json:"description,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent snapshots t for the given mutation.
func NewTransactionEvent(kind EventKind, t core.Transaction) *TransactionEvent {
	ev := &TransactionEvent{
		Event:         kind,
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		Timestamp:     time.Now().UTC(),
	}
	if kind != EventDeleted {
		ev.Type = t.Type.String()
		ev.Amount = t.Amount.String()
		ev.Date = t.Date.String()
		ev.CategoryName = t.CategoryName
		ev.Description = t.Description
	}
	return ev
}

func (e *TransactionEvent) Validate() error {
	switch e.Event {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("unknown event %q", e.Event)
	}
	if e.TransactionID <= 0 {
		return errors.New("missing transaction_id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates a message body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var ev TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}
