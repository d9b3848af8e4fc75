package judge

import (
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/report"
)

// Policy chooses a winner when no timestamp evidence can.
type Policy interface {
	Name() string
	Choose(internal, integration report.InformationChangeRequest) report.InformationChangeRequest
}

// PolicyFunc adapts a function to a named Policy.
type PolicyFunc struct {
	PolicyName string
	Fn         func(internal, integration report.InformationChangeRequest) report.InformationChangeRequest
}

// Name implements Policy.
func (p PolicyFunc) Name() string { return p.PolicyName }

// Choose implements Policy.
func (p PolicyFunc) Choose(internal, integration report.InformationChangeRequest) report.InformationChangeRequest {
	return p.Fn(internal, integration)
}

// PreferIntegration lets the remote system win.
func PreferIntegration() Policy {
	return PolicyFunc{
		PolicyName: "integration",
		Fn: func(_, integration report.InformationChangeRequest) report.InformationChangeRequest {
			return integration
		},
	}
}

// PreferInternal lets the local system win.
func PreferInternal() Policy {
	return PolicyFunc{
		PolicyName: "internal",
		Fn: func(internal, _ report.InformationChangeRequest) report.InformationChangeRequest {
			return internal
		},
	}
}

// PolicyByName returns a built-in policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "integration":
		return PreferIntegration(), nil
	case "internal":
		return PreferInternal(), nil
	default:
		return nil, errors.NewValidationError("fuzzy_policy", name, "must be internal or integration")
	}
}
