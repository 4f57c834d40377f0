package agent

import (
	"voice-banking/internal/calls"
	"voice-banking/internal/flows"
)

// escalationDue reports whether the flow has used up its question budget.
// The counter holds clarifying replies already given in the flow, so with a
// limit of 3 the fourth reply is still spoken and the fifth turn escalates.
func escalationDue(def flows.Definition, s *calls.Session) bool {
	limit, bounded := def.Limit()
	return bounded && s.Questions() > limit
}

func escalationMessage(cat *flows.Catalog, def flows.Definition) string {
	if def.EscalationMessage != "" {
		return def.EscalationMessage
	}
	return cat.HandoffMessage
}
