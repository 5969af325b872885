package nlu

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/droman42/irene/internal/donation"
	"github.com/droman42/irene/internal/intent"
	"github.com/droman42/irene/internal/session"
)

// allowAll accepts every donated method name.
type allowAll struct{}

func (allowAll) HasMethod(string) bool { return true }

const timerTestDoc = `{
  "schema_version": "1.0",
  "handler_domain": "timer",
  "method_donations": [
    {
      "method_name": "set",
      "intent_suffix": "set",
      "phrases": ["поставь таймер", "set a timer"],
      "parameters": [
        {
          "name": "duration",
          "type": "duration",
          "required": true,
          "aliases": ["time"],
          "extraction_patterns": ["на (\\d+ (?:секунд\\S*|минут\\S*|час\\S*))"]
        }
      ],
      "token_patterns": [
        [{"LEMMA": {"IN": ["постав", "став", "установ"]}}, {"LEMMA": "таймер"}]
      ],
      "slot_patterns": {
        "duration": [[{"LIKE_NUM": true}, {"LEMMA": {"IN": ["мин", "минут", "сек", "секунд", "час"]}}]]
      }
    },
    {
      "method_name": "cancel",
      "intent_suffix": "cancel",
      "phrases": ["отмени таймер"],
      "token_patterns": [
        [{"LEMMA": "отмен"}, {"LEMMA": "таймер"}]
      ]
    }
  ],
  "negative_patterns": [[{"LOWER": "не"}]]
}`

const audioTestDoc = `{
  "schema_version": "1.0",
  "handler_domain": "audio",
  "method_donations": [
    {
      "method_name": "play",
      "intent_suffix": "play",
      "phrases": ["включи громкую музыку в зале"],
      "token_patterns": [
        [{"LEMMA": {"IN": ["включ", "постав"]}}, {"LEMMA": "музык"}]
      ],
      "boost": 1.4
    }
  ]
}`

// testRegistry loads the fixture donations and returns the live registry.
func testRegistry(t *testing.T) *donation.Registry {
	t.Helper()
	dir := t.TempDir()
	for name, doc := range map[string]string{
		"timer.json": timerTestDoc,
		"audio.json": audioTestDoc,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := donation.NewRegistry(donation.RegistryConfig{Dir: dir, Strict: true})
	if _, err := r.Load(map[string]donation.MethodChecker{
		"timer": allowAll{},
		"audio": allowAll{},
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func testSnapshot(t *testing.T) *donation.Snapshot {
	t.Helper()
	return testRegistry(t).Snapshot()
}

func testSession() *session.Context {
	return session.NewContext("кухня_session")
}

func TestKeywordMatcher_ExactTier(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	in, err := km.Recognize(context.Background(), "пожалуйста поставь таймер сейчас", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil {
		t.Fatal("no intent for an exact phrase hit")
	}
	if in.Name != "timer.set" {
		t.Errorf("intent = %q, want timer.set", in.Name)
	}
	if in.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for the exact tier", in.Confidence)
	}
	if in.Entities["_recognition_provider"] != "keyword_matcher" {
		t.Errorf("provider entity = %v", in.Entities["_recognition_provider"])
	}
}

func TestKeywordMatcher_FlexibleTierReordersWords(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	in, err := km.Recognize(context.Background(), "таймер мне поставь", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil || in.Name != "timer.set" {
		t.Fatalf("intent = %+v, want timer.set", in)
	}
	if in.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 for the flexible tier", in.Confidence)
	}
}

func TestKeywordMatcher_PartialTier(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Four of the five phrase words are present, below a full flexible hit.
	in, err := km.Recognize(context.Background(), "включи громкую музыку в спальне", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil || in.Name != "audio.play" {
		t.Fatalf("intent = %+v, want audio.play", in)
	}
	if in.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8 for the partial tier", in.Confidence)
	}
}

func TestKeywordMatcher_FuzzyRecoversTypos(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	in, err := km.Recognize(context.Background(), "пастав тайме", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in == nil {
		t.Fatal("fuzzy pass produced no candidate for a near-miss utterance")
	}
	if in.Name != "timer.set" {
		t.Errorf("intent = %q, want timer.set", in.Name)
	}
	if in.Confidence <= 0.5 || in.Confidence >= 0.9 {
		t.Errorf("confidence = %v, want a scaled fuzzy score", in.Confidence)
	}
	if _, ok := in.Entities["_fuzzy_score"]; !ok {
		t.Error("fuzzy hit missing its score entity")
	}
}

func TestKeywordMatcher_FuzzyDisabled(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{FuzzyDisabled: true}, nil)
	if err != nil {
		t.Fatal(err)
	}

	in, err := km.Recognize(context.Background(), "пастав тайме", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in != nil {
		t.Errorf("intent = %+v, want none with the fuzzy pass off", in)
	}
}

func TestKeywordMatcher_FuzzySkipsLongInput(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	long := "пастав тайме " + strings.Repeat("пожалуйста ", 5)
	in, err := km.Recognize(context.Background(), long, testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in != nil {
		t.Errorf("intent = %+v, want none for over-length fuzzy input", in)
	}
}

func TestKeywordMatcher_NoCandidate(t *testing.T) {
	km, err := NewKeywordMatcher(testSnapshot(t), KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	in, err := km.Recognize(context.Background(), "какая сегодня погода", testSession())
	if err != nil {
		t.Fatal(err)
	}
	if in != nil {
		t.Errorf("intent = %+v, want none for an unrelated utterance", in)
	}
}

const contextualTestDoc = `{
  "schema_version": "1.0",
  "handler_domain": "contextual",
  "method_donations": [
    {
      "method_name": "stop",
      "intent_suffix": "stop",
      "phrases": ["стоп", "хватит", "stop"]
    },
    {
      "method_name": "cancel",
      "intent_suffix": "cancel",
      "phrases": ["отмена", "отмени", "cancel"]
    }
  ]
}`

func TestKeywordMatcher_BareInterjectionHitsContextualIntent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "contextual.json"), []byte(contextualTestDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	r := donation.NewRegistry(donation.RegistryConfig{Dir: dir, Strict: true})
	snap, err := r.Load(map[string]donation.MethodChecker{
		"contextual": intent.ContextualMethods{},
	})
	if err != nil {
		t.Fatal(err)
	}
	km, err := NewKeywordMatcher(snap, KeywordConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	for utterance, want := range map[string]string{
		"стоп":   "contextual.stop",
		"stop":   "contextual.stop",
		"отмена": "contextual.cancel",
	} {
		in, err := km.Recognize(context.Background(), utterance, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if in == nil || in.Name != want {
			t.Errorf("Recognize(%q) = %+v, want %s", utterance, in, want)
			continue
		}
		if in.Confidence != 1.0 {
			t.Errorf("Recognize(%q) confidence = %v, want 1.0 for a single-word phrase", utterance, in.Confidence)
		}
	}
}
