package agent

import (
	"fmt"
	"strings"

	"voice-banking/internal/flows"
)

const (
	deepModeNote = "DEEP INSTRUCTIVE MODE: take the caller through the task step by step until it is resolved. " +
		"Ask one question at a time."
	shallowModeNote = "SHALLOW ESCALATION MODE: keep this short. Ask only what you need; if the caller's need " +
		"cannot be met in a few questions, a specialist will take over."

	verificationNote = "IMPORTANT VERIFICATION NOTE: Can't hear 'Customer ID' well? Ask for 'Account Number' (4 digits) " +
		"or 'Phone Number' instead. Prefer asking for Account Number and PIN for verification."
	dataRule = "CRITICAL DATA RULE: You DO NOT know any account details (balance, transactions) unless you use the " +
		"provided tools. DO NOT hallucinate or guess numbers. Always call the tool to get the latest data."
	terminationRule = "TERMINATION RULE: NEVER call end_call to finish a task. Only call end_call when the USER " +
		"explicitly says goodbye or asks to end the call. If you have completed a task (like verification), " +
		"ask the user what else they need."
)

// promptInput is everything the system prompt depends on.
type promptInput struct {
	Catalog    *flows.Catalog
	Binding    Binding
	Verified   bool
	CustomerID string
}

// systemPrompt assembles the executor instruction for one step.
func systemPrompt(in promptInput) string {
	def := in.Binding.Flow
	var b strings.Builder

	b.WriteString(in.Catalog.Persona)
	b.WriteString("\n\nCurrent Flow: ")
	b.WriteString(def.Key)

	if _, bounded := def.Limit(); bounded {
		section(&b, shallowModeNote)
	} else {
		section(&b, deepModeNote)
	}
	section(&b, def.Instructions.InteractionPattern)

	if in.Binding.Gated {
		section(&b, GateInstruction)
		if req := in.Catalog.VerificationPrompts.InitialRequest; req != "" {
			section(&b, "Ask for verification like this: "+req)
		}
		section(&b, def.Instructions.PreVerification)
	} else {
		section(&b, phaseInstructions(def.Instructions, in.Verified))
	}
	section(&b, def.Instructions.EdgeCases)

	section(&b, verificationNote)
	section(&b, dataRule)
	section(&b, terminationRule)

	if in.Verified {
		section(&b, fmt.Sprintf("[SYSTEM UPDATE]: User is VERIFIED (Customer ID: %s). "+
			"You have permission to disclose account details and perform actions. "+
			"Account tools act on this customer automatically. Proceed with the user's request immediately.",
			in.CustomerID))
		if msg := in.Catalog.VerificationPrompts.SuccessMessage; msg != "" {
			section(&b, "If verification just succeeded, confirm it like this: "+msg)
		}
	}
	return b.String()
}

// phaseInstructions picks the instructions for the verification phase,
// falling back to the other phase when one is empty.
func phaseInstructions(in flows.Instructions, verified bool) string {
	if verified {
		if in.PostVerification != "" {
			return in.PostVerification
		}
		return in.PreVerification
	}
	if in.PreVerification != "" {
		return in.PreVerification
	}
	return in.PostVerification
}

func section(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(text)
}
