package reporting

import (
	"context"
	"errors"
	"time"

	"voice-banking/internal/calls"
	"voice-banking/internal/records"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations read the
// call history, which is written once per finished call.
type Repository interface {
	CallsBetween(ctx context.Context, from, to time.Time) ([]records.CallRecord, error)
	ListTickets(ctx context.Context, from, to time.Time) ([]records.Ticket, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, r TimeRange) (CallsSummary, error) {
	if r.From.IsZero() || r.To.IsZero() || !r.To.After(r.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.CallsBetween(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}
	tickets, err := s.repo.ListTickets(ctx, r.From, r.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		Range:         r,
		ByFlow:        map[string]int{},
		ByEndReason:   map[string]int{},
		TicketsByKind: map[string]int{},
	}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds()
		if c.Verified {
			out.VerifiedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusEscalated:
			out.EscalatedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusInProgress:
			// not persisted while live
		}
		flow := c.FinalFlow
		if flow == "" {
			flow = "unrouted"
		}
		out.ByFlow[flow]++
		if c.EndReason != calls.EndReasonNone {
			out.ByEndReason[string(c.EndReason)]++
		}
	}
	for _, t := range tickets {
		out.TicketsByKind[t.Kind]++
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.VerificationRate = float64(out.VerifiedCalls) / float64(out.TotalCalls)
		out.EscalationRate = float64(out.EscalatedCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
