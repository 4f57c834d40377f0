package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Call events carry call_id; admin events carry actor_user_id.
// - Audit is best-effort; callers never block a call on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	CallID     string `json:"call_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`

	// ActorUserID is the authenticated admin causing the event (if applicable).
	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`
	// Metadata is optional JSON for full details. Never put PINs here.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeVerificationGranted EventType = "verification_granted"
	EventTypeVerificationFailed  EventType = "verification_failed"
	EventTypeCardBlocked         EventType = "card_blocked"
	EventTypeFundsTransferred    EventType = "funds_transferred"
	EventTypeEscalation          EventType = "escalation"
	EventTypeAdminAction         EventType = "admin_action"
)

func (t EventType) isAdmin() bool { return t == EventTypeAdminAction }
