package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates finished calls started inside Range.
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	EscalatedCalls int `json:"escalated_calls"`
	FailedCalls    int `json:"failed_calls"`
	VerifiedCalls  int `json:"verified_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	VerificationRate float64 `json:"verification_rate"`
	EscalationRate   float64 `json:"escalation_rate"`

	ByFlow      map[string]int `json:"by_flow"`
	ByEndReason map[string]int `json:"by_end_reason"`

	TicketsByKind map[string]int `json:"tickets_by_kind"`
}
