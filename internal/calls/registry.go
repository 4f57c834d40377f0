package calls

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var ErrDuplicateCall = errors.New("calls: call id already active")

// Mirror publishes live-call snapshots outside the process.
type Mirror interface {
	Publish(ctx context.Context, ac ActiveCall) error
	Remove(ctx context.Context, callID string) error
}

// Registry is the process-wide set of active calls.
//
// Lifecycle: a session is inserted when its connection is accepted and removed
// when the worker exits. Readers only ever see copies built under the lock.
type Registry struct {
	mu    sync.RWMutex
	calls map[string]*Session

	mirror Mirror
	clock  func() time.Time
	log    *slog.Logger
}

type RegistryOption func(*Registry)

func WithMirror(m Mirror) RegistryOption { return func(r *Registry) { r.mirror = m } }

func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

func WithLogger(l *slog.Logger) RegistryOption { return func(r *Registry) { r.log = l } }

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{calls: map[string]*Session{}, clock: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts s and returns the function that removes it. The returned
// function is safe to call more than once.
func (r *Registry) Register(ctx context.Context, s *Session) (func(), error) {
	r.mu.Lock()
	if _, exists := r.calls[s.ID()]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateCall
	}
	r.calls[s.ID()] = s
	r.mu.Unlock()

	r.Publish(ctx, s.ID())

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.calls, s.ID())
			r.mu.Unlock()
			if r.mirror != nil {
				// The call context is usually gone by now.
				rmCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := r.mirror.Remove(rmCtx, s.ID()); err != nil {
					r.log.Warn("live call mirror remove failed", "call_id", s.ID(), "err", err)
				}
			}
		})
	}, nil
}

// Publish pushes the current snapshot of a call to the mirror, if any.
// Mirror failures are logged and never affect the call.
func (r *Registry) Publish(ctx context.Context, callID string) {
	if r.mirror == nil {
		return
	}
	r.mu.RLock()
	s, ok := r.calls[callID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := r.mirror.Publish(ctx, s.Snapshot(r.clock())); err != nil {
		r.log.Warn("live call mirror publish failed", "call_id", callID, "err", err)
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Snapshot returns every active call ordered by start time.
func (r *Registry) Snapshot() []ActiveCall {
	now := r.clock()
	r.mu.RLock()
	out := make([]ActiveCall, 0, len(r.calls))
	for _, s := range r.calls {
		out = append(out, s.Snapshot(now))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Detail returns one active call with its transcript.
func (r *Registry) Detail(callID string) (CallDetail, bool) {
	r.mu.RLock()
	s, ok := r.calls[callID]
	r.mu.RUnlock()
	if !ok {
		return CallDetail{}, false
	}
	return s.Detail(r.clock()), true
}
