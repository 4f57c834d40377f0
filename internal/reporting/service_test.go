package reporting

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"voice-banking/internal/calls"
	"voice-banking/internal/records"
)

func TestCallsSummary_Aggregates(t *testing.T) {
	repo := &memRepo{}
	now := time.Unix(1700000000, 0).UTC()
	repo.calls = []records.CallRecord{
		{CallID: "c1", Verified: true, FinalFlow: "card_atm_issues", Status: calls.CallStatusCompleted, EndReason: calls.EndReasonAgent, StartedAt: now, EndedAt: now.Add(60 * time.Second)},
		{CallID: "c2", FinalFlow: "digital_app_support", Status: calls.CallStatusEscalated, EndReason: calls.EndReasonEscalated, StartedAt: now, EndedAt: now.Add(30 * time.Second)},
		{CallID: "c3", Status: calls.CallStatusCompleted, EndReason: calls.EndReasonIdle, StartedAt: now, EndedAt: now.Add(30 * time.Second)},
		{CallID: "old", Status: calls.CallStatusCompleted, StartedAt: now.Add(-48 * time.Hour), EndedAt: now.Add(-47 * time.Hour)},
	}
	repo.tickets = []records.Ticket{
		{ID: "t1", CallID: "c2", Kind: records.TicketKindSupport, CreatedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 3 {
		t.Fatalf("expected 3 calls in range, got %d", out.TotalCalls)
	}
	if out.CompletedCalls != 2 || out.EscalatedCalls != 1 || out.VerifiedCalls != 1 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if out.TotalDurationSeconds != 120 || out.AverageDurationSeconds != 40 {
		t.Fatalf("unexpected durations: %d %d", out.TotalDurationSeconds, out.AverageDurationSeconds)
	}
	if math.Abs(out.EscalationRate-1.0/3.0) > 1e-9 {
		t.Fatalf("unexpected escalation rate: %f", out.EscalationRate)
	}
	if out.ByFlow["unrouted"] != 1 || out.ByFlow["card_atm_issues"] != 1 {
		t.Fatalf("unexpected by flow: %v", out.ByFlow)
	}
	if out.ByEndReason[string(calls.EndReasonIdle)] != 1 {
		t.Fatalf("unexpected by end reason: %v", out.ByEndReason)
	}
	if out.TicketsByKind[records.TicketKindSupport] != 1 {
		t.Fatalf("unexpected tickets: %v", out.TicketsByKind)
	}
}

func TestCallsSummary_RejectsBadRange(t *testing.T) {
	svc := NewService(&memRepo{})
	now := time.Now()
	if _, err := svc.CallsSummary(context.Background(), TimeRange{From: now, To: now}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.CallsSummary(context.Background(), TimeRange{To: now}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
