package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/droman42/irene/internal/semindex"
	embedmock "github.com/droman42/irene/pkg/provider/embeddings/mock"
)

// semanticProvider pins every fixture phrase to a hand-picked vector so
// similarities are exact instead of hash-seeded.
func semanticProvider() *embedmock.Provider {
	return &embedmock.Provider{
		Dims: 4,
		Fixed: map[string][]float32{
			"поставь таймер":               {1, 0, 0, 0},
			"set a timer":                  {1, 0, 0, 0},
			"отмени таймер":                {0, 1, 0, 0},
			"включи громкую музыку в зале": {0, 0, 1, 0},

			"заведи таймер":    {0.9, 0.1, 0, 0},
			"что такое погода": {0, 0, 0, 1},
		},
	}
}

func TestSemanticMatcher_MatchesNearestPhrase(t *testing.T) {
	sm := NewSemanticMatcher(testSnapshot(t), semanticProvider(), nil, 0)

	in, err := sm.Recognize(context.Background(), "заведи таймер", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil {
		t.Fatal("no intent for a near-synonym phrasing")
	}
	if in.Name != "timer.set" {
		t.Errorf("intent = %q, want timer.set", in.Name)
	}
	if in.Confidence < 0.9 {
		t.Errorf("confidence = %v, want the cosine similarity", in.Confidence)
	}
	if in.Entities["_recognition_provider"] != "semantic_matcher" {
		t.Errorf("provider entity = %v", in.Entities["_recognition_provider"])
	}
}

func TestSemanticMatcher_BelowThresholdYieldsNil(t *testing.T) {
	sm := NewSemanticMatcher(testSnapshot(t), semanticProvider(), nil, 0)

	in, err := sm.Recognize(context.Background(), "что такое погода", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in != nil {
		t.Errorf("orthogonal input matched %q", in.Name)
	}
}

func TestSemanticMatcher_ThresholdOverride(t *testing.T) {
	sm := NewSemanticMatcher(testSnapshot(t), semanticProvider(), nil, 0.999)

	in, err := sm.Recognize(context.Background(), "заведи таймер", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in != nil {
		t.Errorf("near match accepted at a 0.999 threshold: %q", in.Name)
	}
}

func TestSemanticMatcher_EmbeddingFailureIsDependencyError(t *testing.T) {
	p := semanticProvider()
	p.Err = errors.New("backend offline")
	sm := NewSemanticMatcher(testSnapshot(t), p, nil, 0)

	_, err := sm.Recognize(context.Background(), "заведи таймер", testSession())
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Errorf("err = %v, want the dependency marker", err)
	}
}

func TestSemanticMatcher_StoresCorpusVectorsInCache(t *testing.T) {
	cache := semindex.NewMemoryIndex()
	sm := NewSemanticMatcher(testSnapshot(t), semanticProvider(), cache, 0)

	if _, err := sm.Recognize(context.Background(), "заведи таймер", testSession()); err != nil {
		t.Fatal(err)
	}

	for _, phrase := range []string{"поставь таймер", "отмени таймер"} {
		if _, ok, _ := cache.Lookup(context.Background(), "mock-embed", phrase); !ok {
			t.Errorf("corpus phrase %q not cached", phrase)
		}
	}
}

func TestSemanticMatcher_PrefersCachedVectors(t *testing.T) {
	// The cache carries vectors that contradict the provider's: the cancel
	// phrase sits where the weather query embeds. A cache-respecting corpus
	// must match it.
	cache := semindex.NewMemoryIndex()
	ctx := context.Background()
	for phrase, vec := range map[string][]float32{
		"поставь таймер":               {1, 0, 0, 0},
		"set a timer":                  {1, 0, 0, 0},
		"отмени таймер":                {0, 0, 0, 1},
		"включи громкую музыку в зале": {0, 1, 0, 0},
	} {
		if err := cache.Store(ctx, "mock-embed", phrase, vec); err != nil {
			t.Fatal(err)
		}
	}

	sm := NewSemanticMatcher(testSnapshot(t), semanticProvider(), cache, 0)
	in, err := sm.Recognize(ctx, "что такое погода", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil || in.Name != "timer.cancel" {
		t.Errorf("intent = %+v, want the cache-relocated timer.cancel", in)
	}
}
