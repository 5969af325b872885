// Package textnorm implements stage-parameterized text normalization applied
// between ASR output and NLU input, and before TTS synthesis.
//
// Each stage is a pure function of (text, language): applying the same stage
// twice yields the same result, so callers may normalise defensively without
// corrupting already-clean text.
package textnorm

import (
	"strings"
	"unicode"
)

// Stage selects which normalization pipeline to run.
type Stage string

const (
	// StageASROutput converts number words to digits so the NLU sees
	// canonical numerals.
	StageASROutput Stage = "asr_output"

	// StageGeneral runs number conversion plus transliteration and symbol
	// cleanup.
	StageGeneral Stage = "general"

	// StageTTSInput prepares text for synthesis: symbol cleanup plus
	// digits-to-words expansion so the synthesiser pronounces numerals.
	StageTTSInput Stage = "tts_input"

	// StageNumbers runs number conversion only.
	StageNumbers Stage = "numbers"
)

// Normalize runs the stage's pipeline over text for the given IETF language
// tag. Unknown stages return the input unchanged.
func Normalize(text, language string, stage Stage) string {
	lang := baseLanguage(language)
	switch stage {
	case StageASROutput:
		return collapseSpaces(wordsToDigits(text, lang))
	case StageGeneral:
		return collapseSpaces(cleanSymbols(wordsToDigits(text, lang), lang))
	case StageTTSInput:
		return collapseSpaces(digitsToWords(cleanSymbols(text, lang), lang))
	case StageNumbers:
		return collapseSpaces(wordsToDigits(text, lang))
	}
	return text
}

// baseLanguage reduces an IETF tag to its primary subtag ("ru-RU" -> "ru").
func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}

// symbolReplacements maps spoken-text symbols to words per language. Applied
// in cleanSymbols; entries must themselves be normal (idempotency).
var symbolReplacements = map[string]map[string]string{
	"ru": {
		"%": " процентов ",
		"+": " плюс ",
		"№": " номер ",
		"&": " и ",
		"ё": "е",
		"Ё": "Е",
	},
	"en": {
		"%": " percent ",
		"+": " plus ",
		"&": " and ",
	},
}

// cleanSymbols replaces symbols with their spoken form and strips characters
// that neither NLU nor TTS consume.
func cleanSymbols(text, lang string) string {
	if repl, ok := symbolReplacements[lang]; ok {
		for sym, word := range repl {
			text = strings.ReplaceAll(text, sym, word)
		}
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '-' || r == ',' || r == '.' || r == '?' || r == '!' || r == ':':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseSpaces trims and squeezes runs of whitespace to single spaces.
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
