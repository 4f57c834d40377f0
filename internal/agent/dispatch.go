package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-banking/internal/calls"
	"voice-banking/internal/metrics"
	"voice-banking/internal/tools"
)

// Dispatcher runs requested tool calls in order and appends one result per
// call to the session. It checks every name against the step's binding,
// whatever the provider asked for.
type Dispatcher struct {
	tools   Toolbox
	metrics *metrics.Metrics
	log     *slog.Logger
	clock   func() time.Time
}

func NewDispatcher(box Toolbox, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{tools: box, metrics: m, log: log, clock: time.Now}
}

// Dispatch executes reqs under b and returns the results in request order.
func (d *Dispatcher) Dispatch(ctx context.Context, s *calls.Session, b Binding, reqs []calls.ToolCall) []calls.ToolResult {
	out := make([]calls.ToolResult, 0, len(reqs))
	for _, tc := range reqs {
		res := d.run(ctx, s, b, tc)
		s.Append(calls.Message{Role: calls.RoleTool, Content: res.Content, Result: &res, At: d.clock().UTC()})
		out = append(out, res)
	}
	return out
}

func (d *Dispatcher) run(ctx context.Context, s *calls.Session, b Binding, tc calls.ToolCall) calls.ToolResult {
	res := calls.ToolResult{CallID: tc.ID, Name: tc.Name}
	log := d.log.With("tool", tc.Name, "flow", b.Flow.Key)

	if !b.Allows(tc.Name) {
		d.metrics.RecordToolCall(tc.Name, "rejected")
		log.Warn("tool not bound for this step", "gated", b.Gated)
		res.IsError = true
		if b.Gated {
			res.Content = fmt.Sprintf("Tool %s is not available until the caller's identity is verified.", tc.Name)
		} else {
			res.Content = fmt.Sprintf("Tool %s is not available in this conversation.", tc.Name)
		}
		return res
	}

	r, err := d.tools.Run(ctx, tc.Name, tools.Invocation{
		CallID:     s.ID(),
		CustomerID: s.CustomerID(),
		Arguments:  tc.Arguments,
	})
	if err != nil {
		d.metrics.RecordToolCall(tc.Name, "error")
		log.Warn("tool failed", "err", err)
		res.IsError = true
		res.Content = failureText(tc.Name, err)
		return res
	}

	res.Content = r.Content
	res.IsError = r.IsError
	outcome := "ok"
	if r.IsError {
		outcome = "declined"
	}

	if isIdentityCheck(tc.Name) {
		d.applyVerification(s, &res, r.VerifiedCustomerID, log)
	}
	d.metrics.RecordToolCall(tc.Name, outcome)
	return res
}

// applyVerification is the only place a session becomes verified.
func (d *Dispatcher) applyVerification(s *calls.Session, res *calls.ToolResult, customerID string, log *slog.Logger) {
	if customerID == "" {
		d.metrics.RecordVerification(false)
		return
	}
	if err := s.MarkVerified(customerID); err != nil {
		log.Warn("verification rejected", "err", err)
		d.metrics.RecordVerification(false)
		res.IsError = true
		res.Content = "This call is already verified for a different customer."
		return
	}
	res.VerifiedCustomerID = customerID
	d.metrics.RecordVerification(true)
	log.Info("caller verified", "customer_id", customerID)
}

func failureText(name string, err error) string {
	switch {
	case errors.Is(err, tools.ErrNotVerified):
		return "Identity verification is required before using " + name + "."
	case errors.Is(err, tools.ErrBadArguments):
		return "Invalid arguments for " + name + ": " + err.Error()
	case errors.Is(err, tools.ErrUnknownTool):
		return "Unknown tool " + name + "."
	default:
		return "The " + name + " service is unavailable right now."
	}
}
