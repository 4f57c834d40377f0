package turn

import "time"

// IdleTimer is the client-owned idle deadline. It is armed when the client
// becomes idle (reply received and played), disarmed when speech starts or a
// request is outstanding, and fires at most once per arming.
type IdleTimer struct {
	timeout  time.Duration
	deadline time.Time
}

func NewIdleTimer(timeout time.Duration) *IdleTimer {
	return &IdleTimer{timeout: timeout}
}

func (t *IdleTimer) Arm(now time.Time) {
	if t.timeout <= 0 {
		return
	}
	t.deadline = now.Add(t.timeout)
}

func (t *IdleTimer) Disarm() { t.deadline = time.Time{} }

func (t *IdleTimer) Armed() bool { return !t.deadline.IsZero() }

// Fire reports whether the deadline has elapsed, and disarms if so.
func (t *IdleTimer) Fire(now time.Time) bool {
	if t.deadline.IsZero() || now.Before(t.deadline) {
		return false
	}
	t.deadline = time.Time{}
	return true
}
