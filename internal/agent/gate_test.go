package agent

import (
	"strings"
	"testing"
	"time"

	"voice-banking/internal/flows"
)

func testNow() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

func testFlows(t *testing.T) *flows.Catalog {
	t.Helper()
	c, err := flows.Parse([]byte(`
persona: Persona line.
verification_prompts:
  initial_request: Tell me your account number and PIN.
flows:
  card_atm_issues:
    id: 1
    requires_verification: true
    tools: [verify_identity, block_card]
    instructions:
      pre_verification: PRE CARD
      post_verification: POST CARD
      edge_cases: EDGE CARD
  digital_app_support:
    id: 2
    max_questions_before_escalation: 3
    tools: [support_ticket]
    instructions:
      pre_verification: PRE APP
`), []string{"verify_identity", "block_card", "support_ticket", "end_call"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return c
}

func TestBind(t *testing.T) {
	cat := testFlows(t)
	card, _ := cat.Get("card_atm_issues")

	b := Bind(card, false)
	if !b.Gated || len(b.Tools) != 1 || !b.Allows(flows.VerifyIdentityTool) || b.Allows("block_card") || b.Allows(flows.EndCallTool) {
		t.Fatalf("unexpected gated binding: %+v", b)
	}
	b = Bind(card, true)
	if b.Gated || !b.Allows("block_card") || !b.Allows(flows.EndCallTool) {
		t.Fatalf("unexpected verified binding: %+v", b)
	}

	app, _ := cat.Get("digital_app_support")
	if b := Bind(app, false); b.Gated || !b.Allows("support_ticket") {
		t.Fatalf("flows without verification are never gated: %+v", b)
	}

	b = Bind(card, true)
	b.Tools[0] = "mutated"
	if card.Tools[0] == "mutated" {
		t.Fatalf("binding must not alias the flow's tool list")
	}
}

func TestSystemPrompt(t *testing.T) {
	cat := testFlows(t)
	card, _ := cat.Get("card_atm_issues")
	app, _ := cat.Get("digital_app_support")

	gated := systemPrompt(promptInput{Catalog: cat, Binding: Bind(card, false)})
	for _, want := range []string{"Persona line.", "Current Flow: card_atm_issues", deepModeNote, GateInstruction,
		"Tell me your account number and PIN.", "PRE CARD", "EDGE CARD", dataRule, terminationRule} {
		if !strings.Contains(gated, want) {
			t.Fatalf("gated prompt missing %q:\n%s", want, gated)
		}
	}
	if strings.Contains(gated, "POST CARD") || strings.Contains(gated, "VERIFIED") {
		t.Fatalf("gated prompt must not carry post-verification text:\n%s", gated)
	}

	verified := systemPrompt(promptInput{Catalog: cat, Binding: Bind(card, true), Verified: true, CustomerID: "CUST001"})
	if !strings.Contains(verified, "POST CARD") || !strings.Contains(verified, "Customer ID: CUST001") || strings.Contains(verified, GateInstruction) {
		t.Fatalf("unexpected verified prompt:\n%s", verified)
	}

	shallow := systemPrompt(promptInput{Catalog: cat, Binding: Bind(app, true), Verified: true})
	if !strings.Contains(shallow, shallowModeNote) || !strings.Contains(shallow, "PRE APP") {
		t.Fatalf("bounded flow must use shallow mode and fall back to its only instructions:\n%s", shallow)
	}
}
