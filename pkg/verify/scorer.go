package verify

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Verdict is the outcome of scoring one challenge response.
type Verdict struct {
	// Pass is true when no suspicion indicator fired.
	Pass bool
	// Confidence estimates how human the response looked, 0-100.
	// Each indicator subtracts 25 points, floored at 0.
	Confidence int
	// Indicators names every suspicion signal that fired, for audit.
	Indicators []string
}

// ResponseScorer scores a challenge response. Implementations are
// interchangeable classifiers; the surrounding verification contract
// does not change with the strategy.
type ResponseScorer interface {
	Score(ch Challenge, response string, elapsed time.Duration) Verdict
}

// DefaultFastFloor is the elapsed time below which any response is
// considered too fast for human typing.
const DefaultFastFloor = 500 * time.Millisecond

// DefaultLexicon lists mechanical-language markers checked against every
// response regardless of challenge kind.
func DefaultLexicon() []string {
	return []string{
		"optimal response time",
		"perfect accuracy",
		"computational language",
		"pattern repetition",
		"lack of hesitation",
	}
}

// HeuristicScorer is the default ResponseScorer: timing plausibility
// plus content heuristics over a configurable lexicon.
type HeuristicScorer struct {
	// Lexicon holds mechanical-language terms; a hit on any of them is
	// an indicator.
	Lexicon []string
	// FastFloor is the always-suspicious lower bound on response time.
	FastFloor time.Duration
}

// NewHeuristicScorer builds a scorer with the given lexicon, falling
// back to DefaultLexicon and DefaultFastFloor.
func NewHeuristicScorer(lexicon []string) *HeuristicScorer {
	if len(lexicon) == 0 {
		lexicon = DefaultLexicon()
	}
	return &HeuristicScorer{
		Lexicon:   lexicon,
		FastFloor: DefaultFastFloor,
	}
}

// Score combines two independent signals: timing plausibility and
// content plausibility. Every indicator that fires subtracts 25
// confidence points.
func (s *HeuristicScorer) Score(ch Challenge, response string, elapsed time.Duration) Verdict {
	var indicators []string

	// Timing plausibility.
	floor := s.FastFloor
	if floor == 0 {
		floor = DefaultFastFloor
	}
	if elapsed < floor {
		indicators = append(indicators, "response-too-fast")
	}
	if ch.MinElapsed > 0 && ch.MaxElapsed > 0 && (elapsed < ch.MinElapsed || elapsed > ch.MaxElapsed) {
		indicators = append(indicators, "timing-window-missed")
	}

	// Content plausibility over a normalized, case-folded response.
	folded := foldResponse(response)
	for _, term := range s.Lexicon {
		if strings.Contains(folded, foldResponse(term)) {
			indicators = append(indicators, fmt.Sprintf("mechanical-language: %s", term))
		}
	}
	for _, term := range ch.MechanicalTerms {
		if strings.Contains(folded, foldResponse(term)) {
			indicators = append(indicators, fmt.Sprintf("mechanical-language: %s", term))
		}
	}

	if ch.ExpectImperfection && isTooPerfect(response) {
		indicators = append(indicators, "overly-perfect-response")
	}

	confidence := 100 - 25*len(indicators)
	if confidence < 0 {
		confidence = 0
	}

	return Verdict{
		Pass:       len(indicators) == 0,
		Confidence: confidence,
		Indicators: indicators,
	}
}

// foldResponse normalizes a response for lexicon matching: NFKC
// normalization followed by Unicode case folding, so lookalike forms and
// case tricks do not evade the check.
func foldResponse(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

// naturalTypos and casualWords are imperfection markers. Their presence
// in a long response suggests a human typed it.
var (
	naturalTypos = []string{"teh", "hte", "adn", "taht"}
	casualWords  = []string{"um", "uh", "like", "you know"}
)

// isTooPerfect reports whether a long response shows none of the small
// imperfections real typing produces.
func isTooPerfect(text string) bool {
	if len(text) <= 50 {
		return false
	}

	lower := strings.ToLower(text)
	for _, typo := range naturalTypos {
		if strings.Contains(lower, typo) {
			return false
		}
	}
	for _, word := range casualWords {
		if strings.Contains(lower, word) {
			return false
		}
	}
	return strings.Count(text, ",") < 1
}
