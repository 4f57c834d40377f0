// Package flows holds the read-only catalog of conversational flows: which
// tools each flow may use, what it says in each verification phase, and when
// it gives up and hands off.
package flows

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	GeneralFlow        = "general"
	EndCallTool        = "end_call"
	VerifyIdentityTool = "verify_identity"
)

var (
	ErrUnknownTool   = errors.New("flows: unknown tool")
	ErrInvalidConfig = errors.New("flows: invalid config")
)

// IdentityCheckTools are the only tools offered while a verification-gated
// flow is still unverified.
var IdentityCheckTools = []string{VerifyIdentityTool}

const (
	defaultPersona = "You are a helpful, concise voice banking assistant for Bank ABC. " +
		"Keep replies short and speakable. Never read out full card or account numbers."
	defaultInitialRequest = "To help with that I first need to verify your identity. " +
		"Could you tell me your 4 digit account number and your PIN?"
	defaultSuccessMessage = "Thank you, you are verified. How can I help?"
	defaultHandoff        = "I am transferring you to a specialist who can help further. Please stay on the line."
)

type Instructions struct {
	PreVerification    string `yaml:"pre_verification"`
	PostVerification   string `yaml:"post_verification"`
	EdgeCases          string `yaml:"edge_cases"`
	InteractionPattern string `yaml:"interaction_pattern"`
}

// Definition is one flow. MaxQuestionsBeforeEscalation nil means unlimited.
type Definition struct {
	Key                          string       `yaml:"-" json:"key"`
	ID                           int          `yaml:"id" json:"id"`
	Description                  string       `yaml:"description" json:"description"`
	RequiresVerification         bool         `yaml:"requires_verification" json:"requires_verification"`
	MaxQuestionsBeforeEscalation *int         `yaml:"max_questions_before_escalation" json:"max_questions_before_escalation"`
	Instructions                 Instructions `yaml:"instructions" json:"instructions"`
	EscalationMessage            string       `yaml:"escalation_message" json:"escalation_message"`
	StrictKeywords               []string     `yaml:"strict_keywords" json:"strict_keywords"`
	Tools                        []string     `yaml:"tools" json:"tools"`
}

// Limit reports the escalation threshold, if any.
func (d Definition) Limit() (int, bool) {
	if d.MaxQuestionsBeforeEscalation == nil {
		return 0, false
	}
	return *d.MaxQuestionsBeforeEscalation, true
}

func (d Definition) HasTool(name string) bool {
	for _, t := range d.Tools {
		if t == name {
			return true
		}
	}
	return false
}

type VerificationPrompts struct {
	InitialRequest string `yaml:"initial_request" json:"initial_request"`
	SuccessMessage string `yaml:"success_message" json:"success_message"`
}

// Catalog is an immutable, validated set of flows. Build it with Parse.
type Catalog struct {
	Persona             string              `json:"persona"`
	VerificationPrompts VerificationPrompts `json:"verification_prompts"`
	HandoffMessage      string              `json:"handoff_message"`

	flows map[string]Definition
	order []string
}

type fileFormat struct {
	Persona             string                `yaml:"persona"`
	VerificationPrompts VerificationPrompts   `yaml:"verification_prompts"`
	HandoffMessage      string                `yaml:"handoff_message"`
	Flows               map[string]Definition `yaml:"flows"`
}

// LoadFile reads a catalog from a YAML file. knownTools is the tool registry's
// name set; any flow referencing a name outside it is rejected.
func LoadFile(path string, knownTools []string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, knownTools)
}

func Parse(raw []byte, knownTools []string) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	known := make(map[string]bool, len(knownTools))
	for _, t := range knownTools {
		known[t] = true
	}

	c := &Catalog{
		Persona:             strings.TrimSpace(f.Persona),
		VerificationPrompts: f.VerificationPrompts,
		HandoffMessage:      strings.TrimSpace(f.HandoffMessage),
		flows:               make(map[string]Definition, len(f.Flows)+1),
	}
	if c.Persona == "" {
		c.Persona = defaultPersona
	}
	if c.VerificationPrompts.InitialRequest == "" {
		c.VerificationPrompts.InitialRequest = defaultInitialRequest
	}
	if c.VerificationPrompts.SuccessMessage == "" {
		c.VerificationPrompts.SuccessMessage = defaultSuccessMessage
	}
	if c.HandoffMessage == "" {
		c.HandoffMessage = defaultHandoff
	}

	var problems []string
	for key, d := range f.Flows {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			problems = append(problems, "flow with empty key")
			continue
		}
		d.Key = key
		if limit, ok := d.Limit(); ok && limit < 0 {
			problems = append(problems, fmt.Sprintf("%s: max_questions_before_escalation must be >= 0", key))
		}
		for _, t := range d.Tools {
			if !known[t] {
				problems = append(problems, fmt.Sprintf("%s: %v %q", key, ErrUnknownTool, t))
			}
		}
		if _, bounded := d.Limit(); bounded && strings.TrimSpace(d.EscalationMessage) == "" {
			d.EscalationMessage = c.HandoffMessage
		}
		for i, kw := range d.StrictKeywords {
			d.StrictKeywords[i] = strings.ToLower(strings.TrimSpace(kw))
		}
		d.Tools = withEndCall(d.Tools)
		c.flows[key] = d
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		err := ErrInvalidConfig
		for _, p := range problems {
			if strings.Contains(p, ErrUnknownTool.Error()) {
				err = ErrUnknownTool
				break
			}
		}
		return nil, fmt.Errorf("%w:\n- %s", err, strings.Join(problems, "\n- "))
	}

	if _, ok := c.flows[GeneralFlow]; !ok {
		c.flows[GeneralFlow] = Definition{
			Key:         GeneralFlow,
			ID:          maxID(c.flows) + 1,
			Description: "Greeting, chitchat, unclear intent",
			Tools:       withEndCall(append([]string(nil), IdentityCheckTools...)),
		}
	}

	for k := range c.flows {
		c.order = append(c.order, k)
	}
	sort.Slice(c.order, func(i, j int) bool {
		a, b := c.flows[c.order[i]], c.flows[c.order[j]]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Key < b.Key
	})
	return c, nil
}

func withEndCall(tools []string) []string {
	out := make([]string, 0, len(tools)+1)
	seen := map[string]bool{}
	for _, t := range tools {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if !seen[EndCallTool] {
		out = append(out, EndCallTool)
	}
	return out
}

func maxID(m map[string]Definition) int {
	hi := 0
	for _, d := range m {
		if d.ID > hi {
			hi = d.ID
		}
	}
	return hi
}

// Get returns the flow for key.
func (c *Catalog) Get(key string) (Definition, bool) {
	d, ok := c.flows[key]
	return d, ok
}

// Lookup returns the flow for key, or the general flow when key is unknown.
func (c *Catalog) Lookup(key string) Definition {
	if d, ok := c.flows[key]; ok {
		return d
	}
	return c.flows[GeneralFlow]
}

// Ordered returns every flow sorted by id, then key.
func (c *Catalog) Ordered() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.flows[k])
	}
	return out
}

func (c *Catalog) Keys() []string {
	return append([]string(nil), c.order...)
}

func (c *Catalog) Has(key string) bool {
	_, ok := c.flows[key]
	return ok
}
