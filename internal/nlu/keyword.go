package nlu

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/metric"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/session"
)

// Pattern-type multipliers for the three regex variants.
const (
	exactMultiplier    = 1.0
	flexibleMultiplier = 0.9
	partialMultiplier  = 0.8

	// partialWordShare is the fraction of a phrase's words that must appear
	// for the partial variant to fire.
	partialWordShare = 0.7
)

// KeywordConfig configures a [KeywordMatcher].
type KeywordConfig struct {
	// FuzzyDisabled turns the Levenshtein fallback off entirely.
	FuzzyDisabled bool

	// FuzzyThreshold is the composite-score floor below which a fuzzy
	// candidate is discarded. Default 0.7.
	FuzzyThreshold float64

	// FuzzyConfidenceBase scales the composite score into a confidence.
	// Default 0.8.
	FuzzyConfidenceBase float64

	// MaxTextLengthForFuzzy skips the fuzzy pass on inputs longer than this
	// many runes. Default 50.
	MaxTextLengthForFuzzy int

	// CacheSize bounds the fuzzy-result LRU cache. Default 1000.
	CacheSize int
}

func (c *KeywordConfig) applyDefaults() {
	if c.FuzzyThreshold == 0 {
		c.FuzzyThreshold = 0.7
	}
	if c.FuzzyConfidenceBase == 0 {
		c.FuzzyConfidenceBase = 0.8
	}
	if c.MaxTextLengthForFuzzy == 0 {
		c.MaxTextLengthForFuzzy = 50
	}
	if c.CacheSize == 0 {
		c.CacheSize = 1000
	}
}

// methodPatterns holds the compiled regex variants and fuzzy corpus of one
// donation method.
type methodPatterns struct {
	method *donation.MethodDonation

	// exact has one regex per phrase, anchored on word boundaries.
	exact []*regexp.Regexp

	// phraseWords has, per phrase, one presence regex per word. The flexible
	// variant requires all of them; the partial variant a 70% share.
	phraseWords [][]*regexp.Regexp

	// keywords is the lowercased phrase corpus for the fuzzy pass.
	keywords []string
}

// fuzzyHit caches the outcome of one fuzzy pass, including misses.
type fuzzyHit struct {
	intentName string
	composite  float64
	ok         bool
}

// KeywordMatcher is the mandatory first cascade stage. It matches donation
// phrases by regex in three strictness tiers and falls back to a
// Levenshtein-composite fuzzy score for near-miss utterances ("пастав тайме"
// for "поставь таймер").
//
// Safe for concurrent use; the compiled pattern set is immutable and the
// fuzzy cache is internally synchronised.
type KeywordMatcher struct {
	cfg     KeywordConfig
	entries []methodPatterns
	cache   *lru.Cache[string, fuzzyHit]
	metrics *observe.Metrics
}

// NewKeywordMatcher compiles the phrase corpus of every method in snap.
func NewKeywordMatcher(snap *donation.Snapshot, cfg KeywordConfig, metrics *observe.Metrics) (*KeywordMatcher, error) {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	cache, err := lru.New[string, fuzzyHit](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("nlu: fuzzy cache: %w", err)
	}

	km := &KeywordMatcher{cfg: cfg, cache: cache, metrics: metrics}
	for _, m := range snap.Methods() {
		entry := methodPatterns{method: m}
		for _, phrase := range m.Phrases {
			words := splitWords(phrase)
			if len(words) == 0 {
				continue
			}
			entry.exact = append(entry.exact, compilePhrase(words))
			wordRes := make([]*regexp.Regexp, len(words))
			for i, w := range words {
				wordRes[i] = compileWord(w)
			}
			entry.phraseWords = append(entry.phraseWords, wordRes)
			entry.keywords = append(entry.keywords, strings.ToLower(phrase))
		}
		if len(entry.exact) > 0 {
			km.entries = append(km.entries, entry)
		}
	}
	return km, nil
}

func (km *KeywordMatcher) Name() string { return "keyword_matcher" }

// Recognize scores every method against text and returns the best candidate,
// or nil when neither the regex tiers nor the fuzzy pass produce one.
func (km *KeywordMatcher) Recognize(ctx context.Context, text string, sess *session.Context) (*intent.Intent, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return nil, nil
	}

	if name, conf, ok := km.regexMatch(norm); ok {
		in := intent.New(name, text, sess.SessionID(), conf)
		in.Entities["_recognition_provider"] = km.Name()
		return &in, nil
	}

	if km.cfg.FuzzyDisabled || utf8.RuneCountInString(norm) > km.cfg.MaxTextLengthForFuzzy {
		return nil, nil
	}
	hit := km.fuzzyMatch(ctx, norm)
	if !hit.ok {
		return nil, nil
	}
	in := intent.New(hit.intentName, text, sess.SessionID(), km.cfg.FuzzyConfidenceBase*hit.composite)
	in.Entities["_recognition_provider"] = km.Name()
	in.Entities["_fuzzy_score"] = hit.composite
	return &in, nil
}

// regexMatch runs the three tiers and returns the best (name, confidence).
func (km *KeywordMatcher) regexMatch(norm string) (string, float64, bool) {
	var (
		bestName string
		bestConf float64
	)
	for i := range km.entries {
		e := &km.entries[i]
		conf := 0.0
		for pi, exact := range e.exact {
			switch {
			case exact.MatchString(norm):
				conf = math.Max(conf, exactMultiplier)
			default:
				present := 0
				for _, wr := range e.phraseWords[pi] {
					if wr.MatchString(norm) {
						present++
					}
				}
				total := len(e.phraseWords[pi])
				switch {
				case present == total:
					conf = math.Max(conf, flexibleMultiplier)
				case float64(present) >= partialWordShare*float64(total):
					conf = math.Max(conf, partialMultiplier)
				}
			}
		}
		if conf > bestConf {
			bestConf = conf
			bestName = e.method.IntentName()
		}
	}
	return bestName, bestConf, bestName != ""
}

// fuzzyMatch computes (or recalls) the composite fuzzy score for norm.
func (km *KeywordMatcher) fuzzyMatch(ctx context.Context, norm string) fuzzyHit {
	if hit, ok := km.cache.Get(norm); ok {
		km.metrics.FuzzyCacheLookups.Add(ctx, 1, metric.WithAttributes(observe.Attr("result", "hit")))
		return hit
	}
	km.metrics.FuzzyCacheLookups.Add(ctx, 1, metric.WithAttributes(observe.Attr("result", "miss")))

	inputWords := splitWords(norm)
	var best fuzzyHit
	for i := range km.entries {
		e := &km.entries[i]
		composite := km.composite(norm, inputWords, e.keywords)
		if composite > best.composite {
			best = fuzzyHit{intentName: e.method.IntentName(), composite: composite, ok: true}
		}
	}
	if best.composite < km.cfg.FuzzyThreshold {
		best = fuzzyHit{}
	}
	km.cache.Add(norm, best)
	return best
}

// composite blends full-string, per-word partial, and token-set similarity.
func (km *KeywordMatcher) composite(norm string, inputWords, keywords []string) float64 {
	var full float64
	for _, kw := range keywords {
		full = math.Max(full, levRatio(norm, kw))
	}

	var partialSum float64
	for _, w := range inputWords {
		var wordBest float64
		for _, kw := range keywords {
			for _, kww := range splitWords(kw) {
				wordBest = math.Max(wordBest, levRatio(w, kww))
			}
		}
		partialSum += wordBest
	}
	partialAvg := 0.0
	if len(inputWords) > 0 {
		partialAvg = partialSum / float64(len(inputWords))
	}

	var tokenSet float64
	normSet := tokenSetForm(norm)
	for _, kw := range keywords {
		tokenSet = math.Max(tokenSet, levRatio(normSet, tokenSetForm(kw)))
	}

	return 0.5*full + 0.3*partialAvg + 0.2*tokenSet
}

// ─── Similarity primitives ────────────────────────────────────────────────────

// levRatio is a normalised Levenshtein similarity in [0, 1].
func levRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// tokenSetForm renders a string as its sorted unique words, so word order
// and duplication stop mattering.
func tokenSetForm(s string) string {
	words := splitWords(s)
	seen := make(map[string]bool, len(words))
	uniq := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			uniq = append(uniq, w)
		}
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}

// splitWords splits on anything that is not a letter or digit.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// compilePhrase builds the exact-variant regex. Go's \b is ASCII-only, so
// boundaries are expressed as "not letter, not digit" classes that also work
// for Cyrillic.
func compilePhrase(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := `(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(quoted, `[^\p{L}\p{N}]+`) + `(?:$|[^\p{L}\p{N}])`
	return regexp.MustCompile(expr)
}

// compileWord builds a single-word presence regex with the same boundaries.
func compileWord(w string) *regexp.Regexp {
	expr := `(?i)(?:^|[^\p{L}\p{N}])` + regexp.QuoteMeta(w) + `(?:$|[^\p{L}\p{N}])`
	return regexp.MustCompile(expr)
}
