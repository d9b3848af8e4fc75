// Package judge decides which side wins when both the internal and the
// integration system changed the same field since the last sync.
//
// Modes are tried in a fixed cascade, strongest evidence first:
//
//	hard_evidence   certain per-field change times on both sides
//	best_evidence   the best change time each side has
//	fuzzy_evidence  a configured policy; always decides
package judge

import (
	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/report"
)

// Judge holds one strategy per mode.
type Judge struct {
	strategies map[Mode]Strategy
}

type options struct {
	policy Policy
}

// Option configures a Judge.
type Option func(*options) error

// WithPolicy sets the fuzzy evidence policy.
func WithPolicy(policy Policy) Option {
	return func(o *options) error {
		if policy == nil {
			return &errors.ValidationError{Field: "policy", Message: "cannot be nil"}
		}
		o.policy = policy
		return nil
	}
}

// New creates a judge. The fuzzy policy defaults to PreferIntegration.
func New(opts ...Option) (*Judge, error) {
	o := &options{policy: PreferIntegration()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Judge{strategies: map[Mode]Strategy{
		HardEvidence:  NewHardEvidenceStrategy(),
		BestEvidence:  NewBestEvidenceStrategy(),
		FuzzyEvidence: NewFuzzyEvidenceStrategy(o.policy),
	}}, nil
}

// Strategy returns the strategy for a mode.
func (j *Judge) Strategy(mode Mode) (Strategy, bool) {
	s, ok := j.strategies[mode]
	return s, ok
}

// Adjudicate picks the winning request under one mode. It fails with
// ConflictUnresolved when the mode cannot decide.
func (j *Judge) Adjudicate(mode Mode, internal, integration report.InformationChangeRequest) (report.InformationChangeRequest, error) {
	v, err := j.Verdict(mode, internal, integration)
	if err != nil {
		return report.InformationChangeRequest{}, err
	}
	return v.Winner, nil
}

// Verdict is Adjudicate returning the full verdict.
func (j *Judge) Verdict(mode Mode, internal, integration report.InformationChangeRequest) (Verdict, error) {
	s, ok := j.strategies[mode]
	if !ok {
		return Verdict{}, errors.NewValidationError("mode", mode, "unknown judgement mode")
	}
	v, reason, ok := s.Decide(internal, integration)
	if !ok {
		return Verdict{}, errors.NewConflictUnresolvedError(mode.String(), reason)
	}
	return v, nil
}

// Attempt records one mode tried during a cascade.
type Attempt struct {
	Mode   Mode
	Reason string
}

// Decide runs the cascade and returns the first verdict along with the
// modes that could not decide before it.
func (j *Judge) Decide(internal, integration report.InformationChangeRequest) (Verdict, []Attempt, error) {
	var attempts []Attempt
	for _, mode := range Modes() {
		v, err := j.Verdict(mode, internal, integration)
		if err == nil {
			return v, attempts, nil
		}
		var unresolved *errors.ConflictUnresolvedError
		if !errors.As(err, &unresolved) {
			return Verdict{}, attempts, err
		}
		attempts = append(attempts, Attempt{Mode: mode, Reason: unresolved.Reason})
	}
	return Verdict{}, attempts, errors.NewConflictUnresolvedError(FuzzyEvidence.String(), "cascade exhausted")
}
