package nlu

import (
	"context"
	"fmt"
	"sync"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
	"github.com/droman42/irene/pkg/provider/embeddings"
)

// DefaultSemanticThreshold is the cosine-similarity floor for a semantic hit.
const DefaultSemanticThreshold = 0.55

// VectorCache stores phrase embeddings across restarts so the corpus is not
// re-embedded on every boot. Implementations key vectors by (model, text).
type VectorCache interface {
	Lookup(ctx context.Context, model, text string) ([]float32, bool, error)
	Store(ctx context.Context, model, text string, vec []float32) error
}

// corpusEntry is one embedded donation phrase.
type corpusEntry struct {
	intentName string
	vec        []float32
}

// SemanticMatcher is the vector cascade stage. Each method's phrases (plus
// example utterances) form its corpus; the input embedding is compared to
// every corpus vector and the nearest method above the threshold wins.
//
// The corpus embeds lazily on first use so boot does not block on the
// embedding backend.
type SemanticMatcher struct {
	provider  embeddings.Provider
	cache     VectorCache
	threshold float64

	mu     sync.Mutex
	corpus []corpusEntry
	texts  []corpusText
	ready  bool
}

type corpusText struct {
	intentName string
	text       string
}

// NewSemanticMatcher creates the stage over an embedding backend. cache may
// be nil; threshold ≤ 0 uses [DefaultSemanticThreshold].
func NewSemanticMatcher(snap *donation.Snapshot, provider embeddings.Provider, cache VectorCache, threshold float64) *SemanticMatcher {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	sm := &SemanticMatcher{provider: provider, cache: cache, threshold: threshold}
	for _, m := range snap.Methods() {
		for _, p := range m.Phrases {
			sm.texts = append(sm.texts, corpusText{intentName: m.IntentName(), text: p})
		}
		for _, ex := range m.Examples {
			sm.texts = append(sm.texts, corpusText{intentName: m.IntentName(), text: ex.Text})
		}
	}
	return sm
}

func (sm *SemanticMatcher) Name() string { return "semantic_matcher" }

// Recognize embeds text and returns the nearest method at or above the
// similarity threshold, with the similarity as confidence.
func (sm *SemanticMatcher) Recognize(ctx context.Context, text string, sess *session.Context) (*intent.Intent, error) {
	if err := sm.ensureCorpus(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	vec, err := sm.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	var (
		bestName string
		bestSim  float64
	)
	sm.mu.Lock()
	corpus := sm.corpus
	sm.mu.Unlock()
	for _, e := range corpus {
		if sim := embeddings.Cosine(vec, e.vec); sim > bestSim {
			bestSim = sim
			bestName = e.intentName
		}
	}
	if bestName == "" || bestSim < sm.threshold {
		return nil, nil
	}

	in := intent.New(bestName, text, sess.SessionID(), bestSim)
	in.Entities["_recognition_provider"] = sm.Name()
	return &in, nil
}

// ensureCorpus embeds the phrase corpus once, consulting the vector cache
// before calling the backend.
func (sm *SemanticMatcher) ensureCorpus(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.ready {
		return nil
	}

	model := sm.provider.ModelID()
	var misses []corpusText
	for _, ct := range sm.texts {
		if sm.cache != nil {
			vec, ok, err := sm.cache.Lookup(ctx, model, ct.text)
			if err == nil && ok {
				sm.corpus = append(sm.corpus, corpusEntry{intentName: ct.intentName, vec: vec})
				continue
			}
		}
		misses = append(misses, ct)
	}

	if len(misses) > 0 {
		texts := make([]string, len(misses))
		for i, ct := range misses {
			texts[i] = ct.text
		}
		vecs, err := sm.provider.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		for i, ct := range misses {
			sm.corpus = append(sm.corpus, corpusEntry{intentName: ct.intentName, vec: vecs[i]})
			if sm.cache != nil {
				if serr := sm.cache.Store(ctx, model, ct.text, vecs[i]); serr != nil {
					// Cache write failure only costs a re-embed next boot.
					continue
				}
			}
		}
	}
	sm.ready = true
	return nil
}
