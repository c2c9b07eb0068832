// Package coverage holds the deterministic policy rules that frame a claim
// decision.
package coverage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Default rule parameters.
const (
	defaultWaitingMonths = 24
)

// Option applies a configuration option to Rules.
type Option func(*Rules)

// WithWaitingPeriod sets the months of cover required before elective
// joint replacement.
func WithWaitingPeriod(months int) Option {
	return func(r *Rules) {
		if months > 0 {
			r.waitingMonths = months
		}
	}
}

// WithReplacementTerms sets the words identifying joint replacement.
func WithReplacementTerms(terms ...string) Option {
	return func(r *Rules) {
		if len(terms) > 0 {
			r.replacementTerms = lower(terms)
		}
	}
}

// WithEmergencyTerms sets the words identifying emergency care.
func WithEmergencyTerms(terms ...string) Option {
	return func(r *Rules) {
		if len(terms) > 0 {
			r.emergencyTerms = lower(terms)
		}
	}
}

// WithPreExistingTerms sets the words identifying pre-existing conditions.
func WithPreExistingTerms(terms ...string) Option {
	return func(r *Rules) {
		if len(terms) > 0 {
			r.preExistingTerms = lower(terms)
		}
	}
}

// Input abstracts the claim fields the rules look at.
type Input struct {
	Query          string
	Procedure      string
	PolicyDuration string
}

// Rules evaluates the policy rules locally.
type Rules struct {
	waitingMonths    int
	replacementTerms []string
	emergencyTerms   []string
	preExistingTerms []string
}

// NewRules creates the rule set with configuration options.
func NewRules(opts ...Option) *Rules {
	r := &Rules{
		waitingMonths:    defaultWaitingMonths,
		replacementTerms: []string{"knee", "joint replacement", "hip replacement", "arthroplasty"},
		emergencyTerms:   []string{"emergency", "accident", "trauma", "fracture"},
		preExistingTerms: []string{"pre-existing", "preexisting", "ped"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PromptText renders the rules as the bullet list given to the model.
func (r *Rules) PromptText() string {
	w := r.waitingMonths
	return strings.Join([]string{
		fmt.Sprintf("- Policies under %d months do NOT cover knee/joint replacement surgeries", w),
		fmt.Sprintf("- Only emergency orthopedic care is allowed before %d months", w),
		fmt.Sprintf("- Non-emergency knee surgery requires ≥%d months of coverage", w),
		"- Pre-existing conditions may affect coverage",
		"- Location-based treatment costs vary",
	}, "\n")
}

// Evaluate returns the risk factors the rules find for in.
func (r *Rules) Evaluate(ctx context.Context, in Input) []string {
	if ctx.Err() != nil {
		return nil
	}
	text := strings.ToLower(in.Query + " " + in.Procedure)

	var risks []string
	months, known := parseMonths(in.PolicyDuration)
	replacement := containsAny(text, r.replacementTerms)
	emergency := containsAny(text, r.emergencyTerms)

	switch {
	case replacement && known && months < r.waitingMonths && !emergency:
		risks = append(risks, fmt.Sprintf("Policy duration of %d months is within the %d month waiting period for joint procedures", months, r.waitingMonths))
	case replacement && known && months < r.waitingMonths && emergency:
		risks = append(risks, fmt.Sprintf("Emergency orthopedic care within the %d month waiting period", r.waitingMonths))
	case replacement && !known:
		risks = append(risks, "Policy duration unknown for a joint procedure")
	}

	if containsAny(text, r.preExistingTerms) {
		risks = append(risks, "Possible pre-existing condition")
	}
	return risks
}

// WithinWaitingPeriod reports whether an elective joint procedure falls
// inside the waiting period.
func (r *Rules) WithinWaitingPeriod(in Input) bool {
	text := strings.ToLower(in.Query + " " + in.Procedure)
	months, known := parseMonths(in.PolicyDuration)
	return known && months < r.waitingMonths &&
		containsAny(text, r.replacementTerms) && !containsAny(text, r.emergencyTerms)
}

func parseMonths(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexFunc(s, func(c rune) bool { return c < '0' || c > '9' }); i >= 0 {
		s = s[:i]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if t == "ped" {
			// short token, match whole words only
			for _, f := range strings.FieldsFunc(text, func(c rune) bool { return c < 'a' || c > 'z' }) {
				if f == t {
					return true
				}
			}
			continue
		}
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func lower(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}
