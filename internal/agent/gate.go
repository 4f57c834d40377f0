package agent

import (
	"voice-banking/internal/flows"
)

// GateInstruction replaces the flow instructions while a gated flow is unverified.
const GateInstruction = "Current Flow requires VERIFICATION. You MUST ask for Account Number and PIN if not provided. " +
	"Do not perform the action until verified."

// Binding is what one executor step may use: the flow and the tool names
// offered to the provider. The dispatcher enforces the same list.
type Binding struct {
	Flow  flows.Definition
	Tools []string
	Gated bool
}

// Bind applies the verification gate. An unverified caller in a flow that
// requires verification is offered the identity-check tools and nothing else.
func Bind(def flows.Definition, verified bool) Binding {
	if def.RequiresVerification && !verified {
		return Binding{
			Flow:  def,
			Tools: append([]string(nil), flows.IdentityCheckTools...),
			Gated: true,
		}
	}
	return Binding{Flow: def, Tools: append([]string(nil), def.Tools...)}
}

// Allows reports whether name may run under b.
func (b Binding) Allows(name string) bool {
	for _, t := range b.Tools {
		if t == name {
			return true
		}
	}
	return false
}

func isIdentityCheck(name string) bool {
	for _, t := range flows.IdentityCheckTools {
		if t == name {
			return true
		}
	}
	return false
}
