package audit

import (
	"context"
	"sync"
)

type memRepo struct {
	mu     sync.Mutex
	events []Event
}

func (r *memRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memRepo) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
