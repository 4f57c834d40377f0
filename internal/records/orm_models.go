package records

import (
	"encoding/json"
	"time"

	"voice-banking/internal/calls"
)

type callRow struct {
	CallID         string    `gorm:"primaryKey;size:64"`
	CustomerID     string    `gorm:"size:64;index"`
	Verified       bool      `gorm:"not null"`
	FinalFlow      string    `gorm:"size:64"`
	Escalated      bool      `gorm:"not null"`
	Status         string    `gorm:"size:32;not null;index"`
	EndReason      string    `gorm:"size:32"`
	MessageCount   int       `gorm:"not null"`
	TranscriptJSON string    `gorm:"type:text"`
	StartedAt      time.Time `gorm:"not null;index"`
	EndedAt        time.Time `gorm:"not null"`
}

func (callRow) TableName() string { return "call_history" }

func callRowFromRecord(r CallRecord) (callRow, error) {
	row := callRow{
		CallID:       r.CallID,
		CustomerID:   r.CustomerID,
		Verified:     r.Verified,
		FinalFlow:    r.FinalFlow,
		Escalated:    r.Escalated,
		Status:       string(r.Status),
		EndReason:    string(r.EndReason),
		MessageCount: r.MessageCount,
		StartedAt:    r.StartedAt.UTC(),
		EndedAt:      r.EndedAt.UTC(),
	}
	if len(r.Transcript) > 0 {
		raw, err := json.Marshal(r.Transcript)
		if err != nil {
			return callRow{}, err
		}
		row.TranscriptJSON = string(raw)
	}
	return row, nil
}

func (r callRow) toRecord(withTranscript bool) (CallRecord, error) {
	rec := CallRecord{
		CallID:       r.CallID,
		CustomerID:   r.CustomerID,
		Verified:     r.Verified,
		FinalFlow:    r.FinalFlow,
		Escalated:    r.Escalated,
		Status:       calls.CallStatus(r.Status),
		EndReason:    calls.EndReason(r.EndReason),
		MessageCount: r.MessageCount,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	}
	if withTranscript && r.TranscriptJSON != "" {
		if err := json.Unmarshal([]byte(r.TranscriptJSON), &rec.Transcript); err != nil {
			return CallRecord{}, err
		}
	}
	return rec, nil
}

type ticketRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	CallID      string    `gorm:"size:64;index"`
	CustomerID  string    `gorm:"size:64;index"`
	Kind        string    `gorm:"size:64;not null"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (ticketRow) TableName() string { return "support_tickets" }

func (r ticketRow) toTicket() Ticket {
	return Ticket{
		ID:          r.ID,
		CallID:      r.CallID,
		CustomerID:  r.CustomerID,
		Kind:        r.Kind,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}
