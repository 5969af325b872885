package donation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Token is one analysed token of an input utterance. The rule-based NLU
// stage produces these via [Tokenize]; the DSL matches against their
// attributes.
type Token struct {
	// Text is the original token text.
	Text string

	// Lower is the lowercased form.
	Lower string

	// Lemma is a light stemmed approximation of the token's lemma.
	Lemma string

	// POS is a coarse part-of-speech tag: "NUM" for numerals, "PUNCT" for
	// punctuation, "X" otherwise. A full tagger is a provider concern; the
	// DSL only needs these coarse classes.
	POS string

	// LikeNum reports whether the token parses as a number literal.
	LikeNum bool

	// SentStart reports whether the token opens the utterance.
	SentStart bool

	// Alpha reports whether the token is entirely alphabetic.
	Alpha bool
}

// Tokenize splits text into analysed tokens for DSL matching.
func Tokenize(text string) []Token {
	fields := strings.Fields(text)
	tokens := make([]Token, 0, len(fields))
	for i, f := range fields {
		f = strings.Trim(f, ".,!?:;\"'()")
		if f == "" {
			continue
		}
		lower := strings.ToLower(f)
		_, numErr := strconv.ParseFloat(strings.ReplaceAll(lower, ",", "."), 64)
		likeNum := numErr == nil
		alpha := true
		for _, r := range f {
			if !unicode.IsLetter(r) {
				alpha = false
				break
			}
		}
		pos := "X"
		if likeNum {
			pos = "NUM"
		}
		tokens = append(tokens, Token{
			Text:      f,
			Lower:     lower,
			Lemma:     Lemmatize(lower),
			POS:       pos,
			LikeNum:   likeNum,
			SentStart: i == 0,
			Alpha:     alpha,
		})
	}
	return tokens
}

// ruSuffixes are common Russian inflection endings stripped by the light
// stemmer, longest first.
var ruSuffixes = []string{
	"иями", "ями", "ами", "ого", "его", "ому", "ему", "ыми", "ими",
	"ешь", "ишь", "ете", "ите", "ала", "ила", "ыла", "ует",
	"ый", "ий", "ой", "ая", "яя", "ое", "ее", "ут", "ют", "ат", "ят",
	"ов", "ев", "ам", "ям", "ах", "ях", "ом", "ем", "ть",
	"ы", "и", "а", "я", "о", "е", "у", "ю", "ь",
}

// Lemmatize returns a light stemmed approximation of a lowercased word's
// lemma. It is deliberately aggressive-but-cheap: donation lemmas pass
// through the same function, so both sides meet at the same stem.
func Lemmatize(lower string) string {
	runes := []rune(lower)
	if len(runes) <= 3 {
		return lower
	}
	for _, suf := range ruSuffixes {
		sr := []rune(suf)
		if len(runes)-len(sr) >= 3 && strings.HasSuffix(lower, suf) {
			return string(runes[:len(runes)-len(sr)])
		}
	}
	return lower
}

// ─── DSL compilation ──────────────────────────────────────────────────────────

// constraint tests one token attribute.
type constraint func(Token) bool

// compiledToken is one position of a compiled pattern: the conjunction of
// its attribute constraints plus an optional repetition operator.
type compiledToken struct {
	constraints []constraint
	op          byte // 0 (exactly one), '+', '*', '?'
}

func (ct compiledToken) matches(t Token) bool {
	for _, c := range ct.constraints {
		if !c(t) {
			return false
		}
	}
	return true
}

// CompiledPattern is a validated, executable token pattern.
type CompiledPattern struct {
	tokens []compiledToken
}

// Compile validates and compiles a [TokenPattern]. Recognised keys:
//
//	TEXT          literal or {"REGEX": r}
//	LEMMA         literal or {"IN": [...]}
//	POS           tag or {"IN": [...]}
//	LOWER         literal or {"IN": [...]}
//	LIKE_NUM      bool
//	IS_SENT_START bool
//	IS_ALPHA      bool
//	OP            "+", "*", or "?"
//
// A pattern that fails to compile must never reach a live NLU stage; the
// registry treats compile errors as validation failures.
func Compile(p TokenPattern) (*CompiledPattern, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("token pattern is empty")
	}
	cp := &CompiledPattern{tokens: make([]compiledToken, 0, len(p))}
	for i, attrs := range p {
		ct, err := compileToken(attrs)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		cp.tokens = append(cp.tokens, ct)
	}
	return cp, nil
}

func compileToken(attrs map[string]any) (compiledToken, error) {
	var ct compiledToken
	if len(attrs) == 0 {
		return ct, fmt.Errorf("empty constraint map")
	}
	for key, val := range attrs {
		switch key {
		case "TEXT":
			c, err := stringConstraint(val, func(t Token) string { return t.Text })
			if err != nil {
				return ct, fmt.Errorf("TEXT: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "LEMMA":
			c, err := stringConstraint(val, func(t Token) string { return t.Lemma })
			if err != nil {
				return ct, fmt.Errorf("LEMMA: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "POS":
			c, err := stringConstraint(val, func(t Token) string { return t.POS })
			if err != nil {
				return ct, fmt.Errorf("POS: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "LOWER":
			c, err := stringConstraint(val, func(t Token) string { return t.Lower })
			if err != nil {
				return ct, fmt.Errorf("LOWER: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "LIKE_NUM":
			c, err := boolConstraint(val, func(t Token) bool { return t.LikeNum })
			if err != nil {
				return ct, fmt.Errorf("LIKE_NUM: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "IS_SENT_START":
			c, err := boolConstraint(val, func(t Token) bool { return t.SentStart })
			if err != nil {
				return ct, fmt.Errorf("IS_SENT_START: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "IS_ALPHA":
			c, err := boolConstraint(val, func(t Token) bool { return t.Alpha })
			if err != nil {
				return ct, fmt.Errorf("IS_ALPHA: %w", err)
			}
			ct.constraints = append(ct.constraints, c)
		case "OP":
			s, ok := val.(string)
			if !ok || (s != "+" && s != "*" && s != "?") {
				return ct, fmt.Errorf("OP must be one of \"+\", \"*\", \"?\", got %v", val)
			}
			ct.op = s[0]
		default:
			return ct, fmt.Errorf("unrecognised attribute %q", key)
		}
	}
	return ct, nil
}

// stringConstraint builds a constraint over a string attribute. Accepted
// value forms: a literal, {"REGEX": r}, or {"IN": [...]}.
func stringConstraint(val any, get func(Token) string) (constraint, error) {
	switch v := val.(type) {
	case string:
		want := strings.ToLower(v)
		return func(t Token) bool { return strings.ToLower(get(t)) == want }, nil
	case map[string]any:
		if r, ok := v["REGEX"]; ok {
			pattern, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("REGEX value must be a string, got %T", r)
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("REGEX %q: %w", pattern, err)
			}
			return func(t Token) bool { return re.MatchString(get(t)) }, nil
		}
		if in, ok := v["IN"]; ok {
			list, ok := in.([]any)
			if !ok {
				return nil, fmt.Errorf("IN value must be a list, got %T", in)
			}
			set := make(map[string]bool, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("IN list entries must be strings, got %T", item)
				}
				set[strings.ToLower(s)] = true
			}
			return func(t Token) bool { return set[strings.ToLower(get(t))] }, nil
		}
		return nil, fmt.Errorf("constraint map must carry REGEX or IN")
	default:
		return nil, fmt.Errorf("unsupported value %T", val)
	}
}

func boolConstraint(val any, get func(Token) bool) (constraint, error) {
	b, ok := val.(bool)
	if !ok {
		return nil, fmt.Errorf("value must be a bool, got %T", val)
	}
	return func(t Token) bool { return get(t) == b }, nil
}

// ─── Matching ─────────────────────────────────────────────────────────────────

// Match reports whether the pattern matches anywhere in tokens and, on
// success, returns the matched token span.
func (cp *CompiledPattern) Match(tokens []Token) ([]Token, bool) {
	for start := 0; start < len(tokens); start++ {
		if end, ok := cp.matchAt(tokens, start, 0); ok {
			return tokens[start:end], true
		}
	}
	// Patterns made entirely of optional positions match the empty span.
	if end, ok := cp.matchAt(tokens, len(tokens), 0); ok && end == len(tokens) {
		return nil, true
	}
	return nil, false
}

// matchAt tries to match pattern positions pi.. against tokens ti.. with
// backtracking over repetition operators. Returns the end index on success.
func (cp *CompiledPattern) matchAt(tokens []Token, ti, pi int) (int, bool) {
	if pi == len(cp.tokens) {
		return ti, true
	}
	ct := cp.tokens[pi]
	switch ct.op {
	case 0:
		if ti < len(tokens) && ct.matches(tokens[ti]) {
			return cp.matchAt(tokens, ti+1, pi+1)
		}
		return 0, false
	case '?':
		if ti < len(tokens) && ct.matches(tokens[ti]) {
			if end, ok := cp.matchAt(tokens, ti+1, pi+1); ok {
				return end, true
			}
		}
		return cp.matchAt(tokens, ti, pi+1)
	case '*', '+':
		count := 0
		// Greedy: consume as many as possible, then backtrack.
		max := ti
		for max < len(tokens) && ct.matches(tokens[max]) {
			max++
			count++
		}
		min := 0
		if ct.op == '+' {
			min = 1
		}
		for n := count; n >= min; n-- {
			if end, ok := cp.matchAt(tokens, ti+n, pi+1); ok {
				return end, true
			}
		}
		return 0, false
	}
	return 0, false
}
