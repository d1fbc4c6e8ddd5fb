// Package verify implements the human-presence gate: challenges scored
// against timing and content heuristics, combined by majority vote.
//
// The default scorer is a heuristic, not a security guarantee. It is a
// pluggable strategy behind the ResponseScorer interface so callers can
// substitute a different classifier without touching the session layer.
package verify

import "time"

// Kind identifies a challenge category in the fixed catalog.
type Kind string

// Challenge kinds.
const (
	KindTimingDelay         Kind = "timing-delay"
	KindContextualReasoning Kind = "contextual-reasoning"
	KindEmotionalResponse   Kind = "emotional-response"
	KindTypoNaturalness     Kind = "typo-naturalness"
	KindPersonalMemory      Kind = "personal-memory"
)

// Challenge is a single prompt issued to the operator. It is ephemeral:
// generated per verification attempt and discarded after scoring.
type Challenge struct {
	Kind   Kind
	Prompt string

	// MinElapsed/MaxElapsed, when both set, define the target response
	// window for this challenge. Responses outside it are suspicious.
	MinElapsed time.Duration
	MaxElapsed time.Duration

	// MechanicalTerms are extra suspicious terms specific to this
	// challenge, checked in addition to the scorer's lexicon.
	MechanicalTerms []string

	// ExpectImperfection marks challenges where a flawless response is
	// itself a suspicion signal.
	ExpectImperfection bool
}

// Catalog returns the fixed challenge catalog. Issue picks from it
// uniformly at random.
func Catalog() []Challenge {
	return []Challenge{
		{
			Kind:       KindTimingDelay,
			Prompt:     `Type "HUMAN" exactly 3 seconds after you see this message`,
			MinElapsed: 2500 * time.Millisecond,
			MaxElapsed: 3500 * time.Millisecond,
		},
		{
			Kind:   KindContextualReasoning,
			Prompt: "If you saw a child about to touch a hot stove, what would you naturally do first?",
		},
		{
			Kind:            KindEmotionalResponse,
			Prompt:          "Describe how you feel when you see a beautiful sunset (be specific)",
			MechanicalTerms: []string{"optimal", "efficient", "data", "analysis", "compute"},
		},
		{
			Kind:               KindTypoNaturalness,
			Prompt:             `Quickly type this sentence with minor natural typos: "The quick brown fox jumps over the lazy dog"`,
			ExpectImperfection: true,
		},
		{
			Kind:            KindPersonalMemory,
			Prompt:          "What was your favorite childhood toy and why? (be personal)",
			MechanicalTerms: []string{"simulate", "training data", "language model", "ai system"},
		},
	}
}
