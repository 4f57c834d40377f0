package routing

import (
	"fmt"
	"strings"

	"voice-banking/internal/flows"
)

// Prompt builds the classifier instruction for cat. Flows are listed in id
// order with their first keywords; general is always last.
func Prompt(cat *flows.Catalog) string {
	lines := []string{
		"You are a banking router. Classify the user's intent into EXACTLY ONE category.",
		"",
		"=== STRICT CLASSIFICATION RULES ===",
		"1. CARD/ATM keywords (block, freeze, lost, stolen, ATM, card declined) -> card_atm_issues",
		"2. ACCOUNT INFO keywords (balance, transactions, statement) -> account_servicing",
		"3. If BOTH are mentioned, prioritize CARD SAFETY -> card_atm_issues",
		"4. Greeting or unclear -> general",
		"",
		"=== AVAILABLE FLOWS ===",
	}

	n := 0
	for _, d := range cat.Ordered() {
		if d.Key == flows.GeneralFlow {
			continue
		}
		n++
		kw := ""
		if len(d.StrictKeywords) > 0 {
			k := d.StrictKeywords
			if len(k) > 3 {
				k = k[:3]
			}
			kw = fmt.Sprintf(" [Keywords: %s...]", strings.Join(k, ", "))
		}
		lines = append(lines, fmt.Sprintf("%d. %s%s", n, d.Key, kw))
		if d.Description != "" {
			lines = append(lines, "   "+d.Description)
		}
	}
	lines = append(lines, fmt.Sprintf("%d. %s (Greeting, chitchat, unclear intent)", n+1, flows.GeneralFlow))

	lines = append(lines,
		"",
		"=== EXAMPLES ===",
		"User: 'I need to block my card' -> card_atm_issues",
		"User: 'My card was stolen' -> card_atm_issues",
		"User: 'What is my balance?' -> account_servicing",
		"User: 'Show my transactions' -> account_servicing",
		"User: 'I lost my card and want to check my balance' -> card_atm_issues",
		"User: 'Hello' -> general",
		"",
		"Output ONLY the flow name, nothing else.",
	)
	return strings.Join(lines, "\n")
}
