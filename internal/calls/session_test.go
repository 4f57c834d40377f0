package calls

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSession_AppendPreservesPrefix(t *testing.T) {
	s := NewSession("c1", start)
	s.Append(
		Message{Role: RoleUser, Content: "block my card"},
		Message{Role: RoleAgent, ToolCalls: []ToolCall{{ID: "1", Name: "verify_identity", Arguments: json.RawMessage(`{"pin":"1234"}`)}}},
	)
	before := s.Messages()

	for i := 0; i < 3; i++ {
		s.Append(Message{Role: RoleTool, Result: &ToolResult{CallID: "1", Name: "verify_identity", Content: "ok"}})
	}

	after := s.Messages()
	if len(after) != len(before)+3 {
		t.Fatalf("expected %d messages, got %d", len(before)+3, len(after))
	}
	for i := range before {
		if before[i].Role != after[i].Role || before[i].Content != after[i].Content {
			t.Fatalf("prefix changed at %d", i)
		}
	}
	if string(after[1].ToolCalls[0].Arguments) != `{"pin":"1234"}` {
		t.Fatalf("tool call arguments changed")
	}
}

func TestSession_MessagesAreCopies(t *testing.T) {
	s := NewSession("c1", start)
	s.Append(Message{Role: RoleAgent, ToolCalls: []ToolCall{{ID: "1", Name: "get_balance"}}})

	got := s.Messages()
	got[0].ToolCalls[0].Name = "block_card"
	got[0].Content = "mutated"

	again := s.Messages()
	if again[0].ToolCalls[0].Name != "get_balance" || again[0].Content != "" {
		t.Fatalf("stored message was mutated through a copy: %+v", again[0])
	}
}

func TestSession_VerificationIsOneWay(t *testing.T) {
	s := NewSession("c1", start)
	if err := s.MarkVerified(""); !errors.Is(err, ErrInvalidVerification) {
		t.Fatalf("expected ErrInvalidVerification, got %v", err)
	}
	if s.Verified() {
		t.Fatalf("empty id must not verify")
	}
	if err := s.MarkVerified("C001"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := s.MarkVerified("C001"); err != nil {
		t.Fatalf("same customer should be a no-op, got %v", err)
	}
	if err := s.MarkVerified("C002"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if s.CustomerID() != "C001" || !s.Verified() {
		t.Fatalf("verification state changed: %q %v", s.CustomerID(), s.Verified())
	}
}

func TestSession_FlowChangeResetsCounter(t *testing.T) {
	s := NewSession("c1", start)
	s.SetFlow("digital_app_support")
	s.CountQuestion()
	s.CountQuestion()
	if s.SetFlow("digital_app_support") {
		t.Fatalf("same flow must not report a change")
	}
	if s.Questions() != 2 {
		t.Fatalf("expected counter kept, got %d", s.Questions())
	}

	s.SetFlow("account_servicing")
	if s.Questions() != 0 {
		t.Fatalf("expected reset on flow change, got %d", s.Questions())
	}
	s.CountQuestion()
	s.SetFlow("digital_app_support")
	if s.Questions() != 0 {
		t.Fatalf("returning to a prior flow must start from zero, got %d", s.Questions())
	}
}

func TestSession_EndFirstReasonWins(t *testing.T) {
	s := NewSession("c1", start)
	s.End(EndReasonIdle)
	s.End(EndReasonDisconnect)
	if s.EndReason() != EndReasonIdle || s.Status() != CallStatusCompleted {
		t.Fatalf("unexpected end state %q %q", s.EndReason(), s.Status())
	}
}

func TestSession_Snapshot(t *testing.T) {
	s := NewSession("c1", start)
	s.SetFlow("card_atm_issues")
	s.Append(Message{Role: RoleUser, Content: "my card was stolen"})
	s.Append(Message{Role: RoleTool, Result: &ToolResult{Content: "noise"}})
	_ = s.MarkVerified("C001")

	ac := s.Snapshot(start.Add(90 * time.Second))
	if ac.DurationSeconds != 90 || ac.MessageCount != 2 || !ac.IsVerified {
		t.Fatalf("unexpected snapshot %+v", ac)
	}
	if ac.LatestMessage != "my card was stolen" || ac.CurrentFlow != "card_atm_issues" {
		t.Fatalf("unexpected snapshot %+v", ac)
	}
}

func TestRegistry_LifecycleAndSnapshot(t *testing.T) {
	r := NewRegistry(WithClock(func() time.Time { return start.Add(time.Minute) }))
	a := NewSession("a", start.Add(time.Second))
	b := NewSession("b", start)

	unA, err := r.Register(context.Background(), a)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	unB, _ := r.Register(context.Background(), b)
	if _, err := r.Register(context.Background(), NewSession("a", start)); !errors.Is(err, ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].CallID != "b" {
		t.Fatalf("expected ordered snapshot, got %+v", snap)
	}

	unA()
	unA()
	if r.Count() != 1 {
		t.Fatalf("expected 1 active call, got %d", r.Count())
	}
	if _, ok := r.Detail("a"); ok {
		t.Fatalf("expected a removed")
	}
	unB()
	if len(r.Snapshot()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

type recordingMirror struct {
	mu        sync.Mutex
	published []string
	removed   []string
}

func (m *recordingMirror) Publish(_ context.Context, ac ActiveCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ac.CallID)
	return nil
}

func (m *recordingMirror) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
	return errors.New("redis down")
}

func TestRegistry_MirrorFailuresDoNotAffectCalls(t *testing.T) {
	m := &recordingMirror{}
	r := NewRegistry(WithMirror(m))
	un, err := r.Register(context.Background(), NewSession("a", start))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	r.Publish(context.Background(), "a")
	un()

	if len(m.published) != 2 || len(m.removed) != 1 {
		t.Fatalf("unexpected mirror calls %+v", m)
	}
	if r.Count() != 0 {
		t.Fatalf("expected call removed despite mirror error")
	}
}

func TestRegistry_ConcurrentSnapshots(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s := NewSession(string(rune('a'+i)), start)
			un, err := r.Register(context.Background(), s)
			if err != nil {
				return
			}
			s.Append(Message{Role: RoleUser, Content: "hi"})
			un()
		}(i)
		go func() {
			defer wg.Done()
			_ = r.Snapshot()
		}()
	}
	wg.Wait()
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(1)
	rel, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := l.Acquire(context.Background()); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	rel()
	rel()
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("expected slot after release, got %v", err)
	}
}
