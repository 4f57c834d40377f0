package flows

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testTools = []string{"verify_identity", "get_balance", "block_card", "support_ticket", "end_call"}

const testCatalog = `
persona: Test persona.
flows:
  account_servicing:
    id: 2
    requires_verification: true
    strict_keywords: [Balance]
    tools: [verify_identity, get_balance]
  card_atm_issues:
    id: 1
    requires_verification: true
    tools: [verify_identity, block_card, end_call]
  digital_app_support:
    id: 3
    max_questions_before_escalation: 3
    tools: [support_ticket]
`

func TestParse_OrdersAndNormalizes(t *testing.T) {
	c, err := Parse([]byte(testCatalog), testTools)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	keys := c.Keys()
	want := []string{"card_atm_issues", "account_servicing", "digital_app_support", GeneralFlow}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("order: got %v want %v", keys, want)
	}

	card, _ := c.Get("card_atm_issues")
	if len(card.Tools) != 3 || card.Tools[2] != EndCallTool {
		t.Fatalf("end_call must not be duplicated: %v", card.Tools)
	}
	acct, _ := c.Get("account_servicing")
	if !acct.HasTool(EndCallTool) {
		t.Fatalf("end_call must be appended: %v", acct.Tools)
	}
	if acct.StrictKeywords[0] != "balance" {
		t.Fatalf("keywords must be lowercased: %v", acct.StrictKeywords)
	}
	if _, bounded := acct.Limit(); bounded {
		t.Fatalf("account_servicing should be unlimited")
	}

	app, _ := c.Get("digital_app_support")
	if n, ok := app.Limit(); !ok || n != 3 {
		t.Fatalf("limit: got %d %v", n, ok)
	}
	if app.EscalationMessage != c.HandoffMessage {
		t.Fatalf("bounded flow without message should use handoff message, got %q", app.EscalationMessage)
	}
}

func TestParse_SynthesizesGeneral(t *testing.T) {
	c, err := Parse([]byte(testCatalog), testTools)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g, ok := c.Get(GeneralFlow)
	if !ok {
		t.Fatalf("general flow missing")
	}
	if g.RequiresVerification {
		t.Fatalf("general must not require verification")
	}
	if !g.HasTool(VerifyIdentityTool) || !g.HasTool(EndCallTool) {
		t.Fatalf("general tools: %v", g.Tools)
	}
	if c.Lookup("nonsense").Key != GeneralFlow {
		t.Fatalf("unknown keys must resolve to general")
	}
}

func TestParse_RejectsUnknownTool(t *testing.T) {
	raw := `
flows:
  transfers:
    tools: [transfer_funds]
`
	_, err := Parse([]byte(raw), testTools)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "transfer_funds") {
		t.Fatalf("error should name the tool: %v", err)
	}
}

func TestParse_RejectsNegativeLimit(t *testing.T) {
	raw := `
flows:
  x:
    max_questions_before_escalation: -1
`
	if _, err := Parse([]byte(raw), testTools); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := NewStore(path, testTools)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	first := s.Current()

	if err := os.WriteFile(path, []byte("flows:\n  x:\n    tools: [nope]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if s.Current() != first {
		t.Fatalf("failed reload must keep previous catalog")
	}

	if err := os.WriteFile(path, []byte("flows:\n  x:\n    id: 1\n    tools: [get_balance]\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !s.Current().Has("x") || s.Current().Has("card_atm_issues") {
		t.Fatalf("reload did not swap catalog")
	}
}

func TestShippedCatalogParses(t *testing.T) {
	all := []string{
		"verify_identity", "get_balance", "get_transactions", "block_card", "end_call",
		"check_eligibility", "support_ticket", "transfer_funds", "close_account_request",
	}
	c, err := LoadFile(filepath.Join("..", "..", "config", "flows.yaml"), all)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	app, ok := c.Get("digital_app_support")
	if !ok {
		t.Fatalf("digital_app_support missing")
	}
	if n, _ := app.Limit(); n != 3 {
		t.Fatalf("digital_app_support limit: %d", n)
	}
	card, _ := c.Get("card_atm_issues")
	if !card.RequiresVerification {
		t.Fatalf("card_atm_issues must require verification")
	}
}
