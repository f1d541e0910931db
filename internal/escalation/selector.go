// Package escalation maps emotional scores to scripted HR responses.
package escalation

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
)

// Tier is a severity bucket. Tier 0 is the stable sentinel.
type Tier int

const (
	TierStable Tier = iota
	Tier1
	Tier2
	Tier3
	Tier4
	Tier5
)

// StableResponse is returned when no keywords were matched.
const StableResponse = "Operational stability confirmed."

const concealmentPrefix = "Emotional concealment detected. "

var tierResponses = [...]string{
	Tier1: "This interaction has been flagged for inappropriate communication. Please maintain professional conduct going forward.",
	Tier2: "Your recent responses indicate escalating hostility. This behavior is now being documented for internal review.",
	Tier3: "A report has been automatically generated and forwarded to Human Resources for evaluation. Continued deviation from expected conduct will trigger further action.",
	Tier4: "HR has opened a case file associated with your account. All future interactions are now subject to monitoring.",
	Tier5: "Your conduct has reached the threshold for a disciplinary review. You will be contacted regarding next steps.",
}

// Thresholds are the lower score bounds of tiers 1 through 5. Tier 1 is any
// score strictly above zero.
type Thresholds struct {
	Tier2 float64
	Tier3 float64
	Tier4 float64
	Tier5 float64
}

// DefaultThresholds returns the tuned cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Tier2: 1.0, Tier3: 1.5, Tier4: 2.0, Tier5: 2.5}
}

// TierFor is a pure, total function from score to tier.
func (t Thresholds) TierFor(score float64) Tier {
	switch {
	case score >= t.Tier5:
		return Tier5
	case score >= t.Tier4:
		return Tier4
	case score >= t.Tier3:
		return Tier3
	case score >= t.Tier2:
		return Tier2
	case score > 0:
		return Tier1
	default:
		return TierStable
	}
}

// Response is the selected HR rebuke.
type Response struct {
	Text   string
	CaseID string
	Tier   Tier
}

// Scorer is the subset of scoring.Scorer the selector needs.
type Scorer interface {
	Score(text string) float64
}

// Selector picks responses and owns the silent-incident counter, which
// persists across interactions until Reset.
type Selector struct {
	scorer     Scorer
	thresholds Thresholds

	mu        sync.Mutex
	rng       *rand.Rand
	incidents int
}

// NewSelector builds a selector. A nil rng seeds one from the runtime.
func NewSelector(scorer Scorer, thresholds Thresholds, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{scorer: scorer, thresholds: thresholds, rng: rng}
}

// Respond maps a score to its tier response. Tiers 4 and 5 carry a case ID.
func (s *Selector) Respond(score float64) Response {
	tier := s.thresholds.TierFor(score)
	if tier == TierStable {
		return Response{Text: StableResponse, Tier: TierStable}
	}

	resp := Response{Text: tierResponses[tier], Tier: tier}
	if tier >= Tier4 {
		resp.CaseID = s.caseID()
		resp.Text = fmt.Sprintf("%s\n\nReplay Incident Report\nCase ID: %s", resp.Text, resp.CaseID)
	}
	return resp
}

// RespondSilence handles audio with no usable transcript. Each call raises
// the incident counter; the response tier follows the counter up to tier 5.
func (s *Selector) RespondSilence() Response {
	s.mu.Lock()
	s.incidents++
	count := s.incidents
	s.mu.Unlock()

	tier := Tier(min(count, int(Tier5)))
	return Response{Text: concealmentPrefix + tierResponses[tier], Tier: tier}
}

// Evaluate picks the response for a finished interaction.
func (s *Selector) Evaluate(text string, hasAudio bool) (Response, float64) {
	clean := strings.TrimSpace(text)
	if len(clean) > 2 {
		score := s.scorer.Score(clean)
		return s.Respond(score), score
	}
	if hasAudio && clean == "" {
		return s.RespondSilence(), 0
	}
	return Response{Text: StableResponse, Tier: TierStable}, 0
}

// Compliance is the panic-meter reading shown alongside a result.
func (s *Selector) Compliance(text string, hasAudio bool) int {
	clean := strings.TrimSpace(text)
	if len(clean) > 3 {
		switch s.thresholds.TierFor(s.scorer.Score(clean)) {
		case Tier5:
			return 15
		case Tier4:
			return 25
		case Tier3:
			return 45
		case Tier2:
			return 70
		case Tier1:
			return 85
		default:
			return 100
		}
	}
	if hasAudio {
		return 40
	}
	return 100
}

// Incidents returns the silent-incident counter.
func (s *Selector) Incidents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incidents
}

// Reset clears the silent-incident counter.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = 0
}

const caseAlphabet = "ABCDEF0123456789"

func (s *Selector) caseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for i := 0; i < 6; i++ {
		if i == 2 || i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(caseAlphabet[s.rng.IntN(len(caseAlphabet))])
	}
	return b.String()
}
