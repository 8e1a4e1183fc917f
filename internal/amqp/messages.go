package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op is the kind of write that produced an event.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

func (o Op) valid() bool {
	return o == OpCreated || o == OpUpdated || o == OpDeleted
}

// TransactionEvent announces a change to one transaction. It carries only
// identifiers; consumers fetch the current record from the store. Month is
// the record's YYYY-MM after the write, or before it for deletes.
type TransactionEvent struct {
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	Month     string    `json:"month"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionEvent(id string, op Op, month, userID string) *TransactionEvent {
	return &TransactionEvent{
		ID:        id,
		Op:        op,
		Month:     month,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON decodes and checks an event body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("event without transaction id")
	}
	if !msg.Op.valid() {
		return nil, fmt.Errorf("unknown event op %q", msg.Op)
	}
	return &msg, nil
}
