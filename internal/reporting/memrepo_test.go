package reporting

import (
	"context"
	"time"

	"voice-banking/internal/records"
)

// memRepo serves fixed rows, filtered by [from, to) like the records store.
type memRepo struct {
	calls   []records.CallRecord
	tickets []records.Ticket
}

func within(t, from, to time.Time) bool { return !t.Before(from) && t.Before(to) }

func (r *memRepo) CallsBetween(_ context.Context, from, to time.Time) ([]records.CallRecord, error) {
	var out []records.CallRecord
	for _, c := range r.calls {
		if within(c.StartedAt, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memRepo) ListTickets(_ context.Context, from, to time.Time) ([]records.Ticket, error) {
	var out []records.Ticket
	for _, tk := range r.tickets {
		if within(tk.CreatedAt, from, to) {
			out = append(out, tk)
		}
	}
	return out, nil
}
