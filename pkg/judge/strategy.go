package judge

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/syncbridge/pkg/report"
)

// Mode names a judgement strategy.
type Mode string

// String returns the string representation of a mode.
func (m Mode) String() string {
	return string(m)
}

// Name returns the human readable name of the mode.
func (m Mode) Name() string {
	return cases.Title(language.Und).String(strings.ReplaceAll(m.String(), "_", " "))
}

// Judgement modes.
const (
	// HardEvidence decides only from certain per-field timestamps.
	HardEvidence Mode = "hard_evidence"
	// BestEvidence decides from the best timestamp each side has.
	BestEvidence Mode = "best_evidence"
	// FuzzyEvidence always decides, falling back to a policy.
	FuzzyEvidence Mode = "fuzzy_evidence"
)

// Modes returns every mode in cascade order.
func Modes() []Mode {
	return []Mode{HardEvidence, BestEvidence, FuzzyEvidence}
}

// Verdict is a decided conflict.
type Verdict struct {
	Winner report.InformationChangeRequest
	Mode   Mode
	Reason string
}

// Strategy decides a conflict between the internal and integration requests
// for one field, or reports that it cannot.
type Strategy interface {
	// Mode returns the mode this strategy implements.
	Mode() Mode

	// Description returns a human-readable description.
	Description() string

	// Decide returns a verdict and true, or a reason and false.
	Decide(internal, integration report.InformationChangeRequest) (Verdict, string, bool)
}

type baseStrategy struct {
	mode        Mode
	description string
}

// Mode returns the strategy mode.
func (s *baseStrategy) Mode() Mode {
	return s.mode
}

// Description returns a human-readable description.
func (s *baseStrategy) Description() string {
	return s.description
}

func (s *baseStrategy) verdict(winner report.InformationChangeRequest, reason string) Verdict {
	return Verdict{Winner: winner, Mode: s.mode, Reason: reason}
}

// later returns which of two timestamps is later: -1 for a, 1 for b, 0 for equal.
func later(a, b time.Time) int {
	switch {
	case a.After(b):
		return -1
	case b.After(a):
		return 1
	default:
		return 0
	}
}

// HardEvidenceStrategy picks the later certain change time.
type HardEvidenceStrategy struct {
	baseStrategy
}

// NewHardEvidenceStrategy creates the hard evidence strategy.
func NewHardEvidenceStrategy() Strategy {
	return &HardEvidenceStrategy{baseStrategy{
		mode:        HardEvidence,
		description: "Picks the side with the later certain change time",
	}}
}

// Decide implements Strategy.
func (s *HardEvidenceStrategy) Decide(internal, integration report.InformationChangeRequest) (Verdict, string, bool) {
	if internal.CertainChangeDateTime == nil || integration.CertainChangeDateTime == nil {
		return Verdict{}, "both sides need a certain change time", false
	}
	switch later(*internal.CertainChangeDateTime, *integration.CertainChangeDateTime) {
	case -1:
		return s.verdict(internal, "internal certainly changed later"), "", true
	case 1:
		return s.verdict(integration, "integration certainly changed later"), "", true
	default:
		return Verdict{}, "certain change times are equal", false
	}
}

// BestEvidenceStrategy picks the later of the best timestamp on each side,
// using the certain time when known and the possible time otherwise.
type BestEvidenceStrategy struct {
	baseStrategy
}

// NewBestEvidenceStrategy creates the best evidence strategy.
func NewBestEvidenceStrategy() Strategy {
	return &BestEvidenceStrategy{baseStrategy{
		mode:        BestEvidence,
		description: "Picks the side with the later certain or possible change time",
	}}
}

func bestTime(r report.InformationChangeRequest) *time.Time {
	if r.CertainChangeDateTime != nil {
		return r.CertainChangeDateTime
	}
	return r.PossibleChangeDateTime
}

// Decide implements Strategy.
func (s *BestEvidenceStrategy) Decide(internal, integration report.InformationChangeRequest) (Verdict, string, bool) {
	a, b := bestTime(internal), bestTime(integration)
	switch {
	case a == nil && b == nil:
		return Verdict{}, "neither side has a change time", false
	case b == nil:
		return s.verdict(internal, "only internal has a change time"), "", true
	case a == nil:
		return s.verdict(integration, "only integration has a change time"), "", true
	}
	switch later(*a, *b) {
	case -1:
		return s.verdict(internal, "internal changed later"), "", true
	case 1:
		return s.verdict(integration, "integration changed later"), "", true
	default:
		return Verdict{}, "change times are equal", false
	}
}

// FuzzyEvidenceStrategy settles a conflict the timestamps could not. Equal
// values need no winner; otherwise the configured policy chooses.
type FuzzyEvidenceStrategy struct {
	baseStrategy
	policy Policy
}

// NewFuzzyEvidenceStrategy creates the fuzzy evidence strategy.
func NewFuzzyEvidenceStrategy(policy Policy) Strategy {
	if policy == nil {
		policy = PreferIntegration()
	}
	return &FuzzyEvidenceStrategy{
		baseStrategy: baseStrategy{
			mode:        FuzzyEvidence,
			description: fmt.Sprintf("Settles remaining conflicts with the %s policy", policy.Name()),
		},
		policy: policy,
	}
}

// Decide implements Strategy. It always decides.
func (s *FuzzyEvidenceStrategy) Decide(internal, integration report.InformationChangeRequest) (Verdict, string, bool) {
	if internal.NewValue.Equal(integration.NewValue) {
		return s.verdict(integration, "values are equal"), "", true
	}
	winner := s.policy.Choose(internal, integration)
	return s.verdict(winner, fmt.Sprintf("selected by %s policy", s.policy.Name())), "", true
}
