// Package records keeps the durable history of finished calls and the
// support tickets raised during them.
package records

import (
	"errors"
	"time"

	"voice-banking/internal/calls"
)

var (
	ErrNotFound        = errors.New("records: not found")
	ErrInvalidArgument = errors.New("records: invalid argument")
)

// CallRecord is the persisted summary of one finished call.
type CallRecord struct {
	CallID       string           `json:"call_id"`
	CustomerID   string           `json:"customer_id,omitempty"`
	Verified     bool             `json:"is_verified"`
	FinalFlow    string           `json:"final_flow,omitempty"`
	Escalated    bool             `json:"escalated"`
	Status       calls.CallStatus `json:"status"`
	EndReason    calls.EndReason  `json:"end_reason"`
	MessageCount int              `json:"message_count"`
	Transcript   []calls.Message  `json:"transcript,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      time.Time        `json:"ended_at"`
}

func (r CallRecord) DurationSeconds() int {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return int(r.EndedAt.Sub(r.StartedAt).Seconds())
}

// FromSession builds a record of a session that has just ended.
func FromSession(s *calls.Session, endedAt time.Time) CallRecord {
	d := s.Detail(endedAt)
	return CallRecord{
		CallID:       d.CallID,
		CustomerID:   d.CustomerID,
		Verified:     d.IsVerified,
		FinalFlow:    d.CurrentFlow,
		Escalated:    d.Escalated,
		Status:       s.Status(),
		EndReason:    s.EndReason(),
		MessageCount: d.MessageCount,
		Transcript:   d.Messages,
		StartedAt:    d.StartTime,
		EndedAt:      endedAt,
	}
}

// Ticket is a support or back-office request raised by a tool during a call.
type Ticket struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	CustomerID  string    `json:"customer_id,omitempty"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	TicketKindSupport = "support"
	TicketKindClosure = "account_closure"
)

// HistoryFilter narrows ListCalls. Zero values mean "any".
type HistoryFilter struct {
	CustomerID string
	Status     calls.CallStatus
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (f HistoryFilter) limit() int {
	if f.Limit <= 0 {
		return defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return f.Limit
}
