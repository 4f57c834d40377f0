package calls

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyVerified     = errors.New("calls: session already verified for another customer")
	ErrInvalidVerification = errors.New("calls: verification requires a customer id")
)

// Session is the state of one active call.
//
// Invariants:
// - messages are append-only; existing entries are never reordered or mutated.
// - verified moves false to true once; customerID is set with it and never cleared.
// - the question counter belongs to the current flow and resets when the flow changes.
//
// A Session is owned by its call worker. The mutex exists so the live-call
// registry can take consistent snapshots from other goroutines.
type Session struct {
	mu sync.Mutex

	id        string
	startedAt time.Time

	messages   []Message
	customerID string
	verified   bool

	flow      string
	questions int
	escalated map[string]bool

	idleNudges int

	over      bool
	endReason EndReason
}

func NewSession(id string, startedAt time.Time) *Session {
	return &Session{id: id, startedAt: startedAt.UTC(), escalated: map[string]bool{}}
}

func (s *Session) ID() string { return s.id }

func (s *Session) StartedAt() time.Time { return s.startedAt }

// Append adds messages at the end of the conversation.
func (s *Session) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages = append(s.messages, m.clone())
	}
}

// Messages returns a deep copy of the conversation in order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// LastUserText returns the most recent user utterance.
func (s *Session) LastUserText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return s.messages[i].Content
		}
	}
	return ""
}

func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verified
}

func (s *Session) CustomerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerID
}

// MarkVerified performs the one-way verification transition.
// Re-verifying the same customer is a no-op; a different customer is rejected.
func (s *Session) MarkVerified(customerID string) error {
	if customerID == "" {
		return ErrInvalidVerification
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified {
		if s.customerID == customerID {
			return nil
		}
		return ErrAlreadyVerified
	}
	s.verified = true
	s.customerID = customerID
	return nil
}

func (s *Session) Flow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flow
}

// SetFlow records the routed flow and reports whether it changed.
// A change resets the question counter.
func (s *Session) SetFlow(flow string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flow == flow {
		return false
	}
	s.flow = flow
	s.questions = 0
	return true
}

func (s *Session) Questions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

// CountQuestion records one clarifying reply in the current flow.
func (s *Session) CountQuestion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions++
	return s.questions
}

func (s *Session) Escalated(flow string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalated[flow]
}

func (s *Session) MarkEscalated(flow string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalated[flow] = true
}

// NoteIdle counts one idle timeout and returns the consecutive total.
func (s *Session) NoteIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleNudges++
	return s.idleNudges
}

func (s *Session) ResetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleNudges = 0
}

// End marks the call over. The first reason wins.
func (s *Session) End(reason EndReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.over {
		return
	}
	s.over = true
	s.endReason = reason
}

func (s *Session) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.over
}

func (s *Session) EndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// Status derives the reported call status.
func (s *Session) Status() CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !s.over:
		return CallStatusInProgress
	case s.endReason == EndReasonEscalated || len(s.escalated) > 0:
		return CallStatusEscalated
	case s.endReason == EndReasonError:
		return CallStatusFailed
	default:
		return CallStatusCompleted
	}
}

// Snapshot returns the live-monitoring view at now.
func (s *Session) Snapshot(now time.Time) ActiveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now)
}

// Detail returns the snapshot with a copy of the transcript.
func (s *Session) Detail(now time.Time) CallDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.clone()
	}
	return CallDetail{ActiveCall: s.snapshotLocked(now), Messages: msgs}
}

func (s *Session) snapshotLocked(now time.Time) ActiveCall {
	ac := ActiveCall{
		CallID:          s.id,
		CustomerID:      s.customerID,
		StartTime:       s.startedAt,
		DurationSeconds: int(now.Sub(s.startedAt) / time.Second),
		IsVerified:      s.verified,
		CurrentFlow:     s.flow,
		MessageCount:    len(s.messages),
		Escalated:       s.escalated[s.flow],
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if (m.Role == RoleUser || m.Role == RoleAgent) && m.Content != "" {
			ac.LatestMessage = m.Content
			break
		}
	}
	return ac
}
