package nlu

import (
	"context"
	"strings"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
)

// ruleBaseConfidence is the confidence of a bare token-pattern hit before
// the method's boost is applied.
const ruleBaseConfidence = 0.85

// compiledMethod pairs a donation method with its compiled token and slot
// patterns.
type compiledMethod struct {
	method   *donation.MethodDonation
	patterns []*donation.CompiledPattern
	slots    map[string][]*donation.CompiledPattern
}

// RuleMatcher is the morphological cascade stage. It matches tokenised input
// against each method's token patterns and fills slot entities from the
// winner's slot patterns.
//
// Compilation happens once at construction; Recognize is read-only and safe
// for concurrent use.
type RuleMatcher struct {
	methods  []compiledMethod
	negative map[string][]*donation.CompiledPattern
}

// NewRuleMatcher compiles the token patterns of every method in snap. Methods
// without token patterns do not participate in this stage.
func NewRuleMatcher(snap *donation.Snapshot) (*RuleMatcher, error) {
	rm := &RuleMatcher{negative: make(map[string][]*donation.CompiledPattern)}

	for _, domain := range snap.Domains() {
		doc, _ := snap.Document(domain)
		for _, tp := range doc.NegativePatterns {
			cp, err := donation.Compile(tp)
			if err != nil {
				return nil, err
			}
			rm.negative[domain] = append(rm.negative[domain], cp)
		}
	}

	for _, m := range snap.Methods() {
		if len(m.TokenPatterns) == 0 {
			continue
		}
		cm := compiledMethod{method: m, slots: make(map[string][]*donation.CompiledPattern)}
		for _, tp := range m.TokenPatterns {
			cp, err := donation.Compile(tp)
			if err != nil {
				return nil, err
			}
			cm.patterns = append(cm.patterns, cp)
		}
		for slot, patterns := range m.SlotPatterns {
			for _, tp := range patterns {
				cp, err := donation.Compile(tp)
				if err != nil {
					return nil, err
				}
				cm.slots[slot] = append(cm.slots[slot], cp)
			}
		}
		rm.methods = append(rm.methods, cm)
	}
	return rm, nil
}

func (rm *RuleMatcher) Name() string { return "rule_matcher" }

// Recognize returns the highest-scoring matching method, with slot entities
// populated, or nil when no token pattern matches.
func (rm *RuleMatcher) Recognize(_ context.Context, text string, sess *session.Context) (*intent.Intent, error) {
	tokens := donation.Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	var (
		best      *compiledMethod
		bestScore float64
	)
	for i := range rm.methods {
		cm := &rm.methods[i]
		if rm.vetoed(cm.method.Domain(), tokens) {
			continue
		}
		matched := false
		for _, cp := range cm.patterns {
			if _, ok := cp.Match(tokens); ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		score := ruleBaseConfidence * cm.method.EffectiveBoost()
		if score > 1.0 {
			score = 1.0
		}
		if score > bestScore {
			bestScore = score
			best = cm
		}
	}
	if best == nil {
		return nil, nil
	}

	in := intent.New(best.method.IntentName(), text, sess.SessionID(), bestScore)
	in.Entities["_recognition_provider"] = rm.Name()
	for slot, patterns := range best.slots {
		for _, cp := range patterns {
			if span, ok := cp.Match(tokens); ok && len(span) > 0 {
				in.Entities[slot] = joinTokens(span)
				break
			}
		}
	}
	return &in, nil
}

// vetoed reports whether a domain's negative patterns match the input.
func (rm *RuleMatcher) vetoed(domain string, tokens []donation.Token) bool {
	for _, cp := range rm.negative[domain] {
		if _, ok := cp.Match(tokens); ok {
			return true
		}
	}
	return false
}

func joinTokens(span []donation.Token) string {
	parts := make([]string, len(span))
	for i, t := range span {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}
