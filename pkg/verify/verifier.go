package verify

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/markattarcolgate64/guardianlock/pkg/audit"
)

// Verification round counts. A strict majority of the issued challenges
// must pass for the overall verification to succeed.
const (
	DefaultRounds   = 3
	DefaultMajority = 2
)

// PresenceTimeout bounds the lightweight in-session presence re-check:
// a response slower than this means the operator may have left.
const PresenceTimeout = 30 * time.Second

// State of a single challenge within a verification session.
type State int

const (
	// StateIssued means the challenge was generated and awaits scoring.
	StateIssued State = iota
	// StateScoredPass means the response passed scoring.
	StateScoredPass
	// StateScoredFail means the response failed scoring.
	StateScoredFail
)

// Round records one issued challenge and its outcome.
type Round struct {
	Challenge Challenge
	Response  string
	Elapsed   time.Duration
	Verdict   Verdict
	State     State
}

// Result is the outcome of a multi-challenge verification.
type Result struct {
	Passed bool
	Rounds []Round
}

// PassCount returns how many rounds passed.
func (r *Result) PassCount() int {
	n := 0
	for _, round := range r.Rounds {
		if round.State == StateScoredPass {
			n++
		}
	}
	return n
}

// Responder supplies the operator's answer to one challenge, along with
// the time the answer took. The verifier imposes no timeout; the caller
// must bound the wait itself.
type Responder func(ch Challenge) (response string, elapsed time.Duration, err error)

// Verifier drives multi-challenge human verification.
type Verifier struct {
	scorer   ResponseScorer
	rounds   int
	majority int
	log      *audit.Logger
	pick     func(n int) int
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRounds overrides the challenge count and required majority.
func WithRounds(rounds, majority int) VerifierOption {
	return func(v *Verifier) {
		v.rounds = rounds
		v.majority = majority
	}
}

// WithAuditLogger records verification outcomes to the access log.
func WithAuditLogger(log *audit.Logger) VerifierOption {
	return func(v *Verifier) { v.log = log }
}

// WithPick substitutes the challenge selector, for tests.
func WithPick(pick func(n int) int) VerifierOption {
	return func(v *Verifier) { v.pick = pick }
}

// NewVerifier builds a Verifier around a scorer. A nil scorer gets the
// default HeuristicScorer.
func NewVerifier(scorer ResponseScorer, opts ...VerifierOption) *Verifier {
	if scorer == nil {
		scorer = NewHeuristicScorer(nil)
	}
	v := &Verifier{
		scorer:   scorer,
		rounds:   DefaultRounds,
		majority: DefaultMajority,
		pick:     rand.Intn,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Issue picks one challenge uniformly at random from the catalog.
func (v *Verifier) Issue() Challenge {
	catalog := Catalog()
	return catalog[v.pick(len(catalog))]
}

// Score scores a single challenge response.
func (v *Verifier) Score(ch Challenge, response string, elapsed time.Duration) Verdict {
	return v.scorer.Score(ch, response, elapsed)
}

// Run issues the configured number of challenges and requires a strict
// majority to pass. A failed verification is logged as a suspected
// non-human attempt with full round context, but does not lock out
// future attempts.
func (v *Verifier) Run(responder Responder) (*Result, error) {
	result := &Result{}

	for i := 0; i < v.rounds; i++ {
		ch := v.Issue()
		round := Round{Challenge: ch, State: StateIssued}

		response, elapsed, err := responder(ch)
		if err != nil {
			return nil, fmt.Errorf("verify: challenge %d/%d: %w", i+1, v.rounds, err)
		}

		round.Response = response
		round.Elapsed = elapsed
		round.Verdict = v.scorer.Score(ch, response, elapsed)
		if round.Verdict.Pass {
			round.State = StateScoredPass
		} else {
			round.State = StateScoredFail
		}

		result.Rounds = append(result.Rounds, round)
	}

	result.Passed = result.PassCount() >= v.majority
	v.logOutcome(result)
	return result, nil
}

func (v *Verifier) logOutcome(result *Result) {
	if v.log == nil {
		return
	}

	ctx := map[string]interface{}{
		"rounds": len(result.Rounds),
		"passed": result.PassCount(),
	}
	var indicators []string
	for _, round := range result.Rounds {
		ctx[fmt.Sprintf("elapsed_%s", round.Challenge.Kind)] = round.Elapsed.String()
		indicators = append(indicators, round.Verdict.Indicators...)
	}
	if len(indicators) > 0 {
		ctx["indicators"] = indicators
	}

	if result.Passed {
		_ = v.log.Log(audit.ActionVerifyPass, audit.SourceGuard, "", "", audit.ResultSuccess, nil, ctx)
	} else {
		_ = v.log.Log(audit.ActionVerifyFail, audit.SourceGuard, "", "", audit.ResultDenied,
			&audit.ErrorInfo{Code: "VerificationFailed", Message: "suspected non-human attempt"}, ctx)
	}
}

// CheckPresence is the lightweight in-session re-check: a single prompt
// whose only requirement is a response within PresenceTimeout.
func (v *Verifier) CheckPresence(responder Responder) bool {
	ch := Challenge{
		Kind:   "presence",
		Prompt: "Type 'CONFIRM' to verify continued human presence",
	}
	_, elapsed, err := responder(ch)
	if err != nil {
		return false
	}
	return elapsed <= PresenceTimeout
}
