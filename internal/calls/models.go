package calls

import (
	"encoding/json"
	"time"
)

// Role is the author of a Message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

// ToolCall is a tool invocation requested by the reasoning provider.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResult is the outcome of one ToolCall.
//
// VerifiedCustomerID is set only by a successful identity check. It is the one
// field the verification gate reads to grant verification.
type ToolResult struct {
	CallID             string `json:"call_id"`
	Name               string `json:"name"`
	Content            string `json:"content"`
	IsError            bool   `json:"is_error,omitempty"`
	VerifiedCustomerID string `json:"verified_customer_id,omitempty"`
}

// Message is one entry of the conversation. Messages are immutable once
// appended to a Session; the Session hands out deep copies.
type Message struct {
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
	At        time.Time   `json:"at"`
}

func (m Message) clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	if m.Result != nil {
		r := *m.Result
		out.Result = &r
	}
	return out
}

// CallStatus is the lifecycle state reported for a call.
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusEscalated  CallStatus = "escalated"
	CallStatusFailed     CallStatus = "failed"
)

// EndReason records why a call ended.
type EndReason string

const (
	EndReasonNone       EndReason = ""
	EndReasonAgent      EndReason = "agent_ended"
	EndReasonIdle       EndReason = "idle_timeout"
	EndReasonEscalated  EndReason = "escalated"
	EndReasonDisconnect EndReason = "disconnected"
	EndReasonShutdown   EndReason = "shutdown"
	EndReasonError      EndReason = "error"
)

// ActiveCall is the live-monitoring view of one call.
type ActiveCall struct {
	CallID          string    `json:"call_id"`
	CustomerID      string    `json:"customer_id,omitempty"`
	StartTime       time.Time `json:"start_time"`
	DurationSeconds int       `json:"duration_seconds"`
	IsVerified      bool      `json:"is_verified"`
	CurrentFlow     string    `json:"current_flow,omitempty"`
	MessageCount    int       `json:"message_count"`
	LatestMessage   string    `json:"latest_message,omitempty"`
	Escalated       bool      `json:"escalated"`
}

// CallDetail is ActiveCall plus the transcript.
type CallDetail struct {
	ActiveCall
	Messages []Message `json:"messages"`
}
