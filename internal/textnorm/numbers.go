package textnorm

import (
	"strconv"
	"strings"
)

// numberWords maps spoken number words to their values per language. Values
// under 100 are additive terms; hundreds and above are multipliers handled in
// wordsToDigits.
var numberWords = map[string]map[string]int{
	"ru": {
		"ноль": 0, "один": 1, "одну": 1, "одна": 1, "два": 2, "две": 2,
		"три": 3, "четыре": 4, "пять": 5, "шесть": 6, "семь": 7,
		"восемь": 8, "девять": 9, "десять": 10, "одиннадцать": 11,
		"двенадцать": 12, "тринадцать": 13, "четырнадцать": 14,
		"пятнадцать": 15, "шестнадцать": 16, "семнадцать": 17,
		"восемнадцать": 18, "девятнадцать": 19, "двадцать": 20,
		"тридцать": 30, "сорок": 40, "пятьдесят": 50, "шестьдесят": 60,
		"семьдесят": 70, "восемьдесят": 80, "девяносто": 90,
		"сто": 100, "двести": 200, "триста": 300, "четыреста": 400,
		"пятьсот": 500, "шестьсот": 600, "семьсот": 700,
		"восемьсот": 800, "девятьсот": 900,
	},
	"en": {
		"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
		"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
		"nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40,
		"fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	},
}

// scaleWords are multipliers applied to the accumulated group value.
var scaleWords = map[string]map[string]int{
	"ru": {"тысяча": 1000, "тысячи": 1000, "тысяч": 1000},
	"en": {"hundred": 100, "thousand": 1000},
}

// wordsToDigits replaces runs of spoken number words with their numeric
// form: "поставь таймер на пять минут" -> "поставь таймер на 5 минут".
// Tokens already numeric pass through unchanged, making the stage
// idempotent.
func wordsToDigits(text, lang string) string {
	words, ok := numberWords[lang]
	if !ok {
		return text
	}
	scales := scaleWords[lang]

	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))

	i := 0
	for i < len(tokens) {
		lower := strings.ToLower(tokens[i])
		if _, isNum := words[lower]; !isNum {
			out = append(out, tokens[i])
			i++
			continue
		}

		// Accumulate the run of number/scale words starting here.
		total, group := 0, 0
		j := i
		for j < len(tokens) {
			w := strings.ToLower(tokens[j])
			if v, isNum := words[w]; isNum {
				group += v
				j++
				continue
			}
			if mult, isScale := scales[w]; isScale && group > 0 {
				if mult >= 1000 {
					total += group * mult
					group = 0
				} else {
					group *= mult
				}
				j++
				continue
			}
			break
		}
		out = append(out, strconv.Itoa(total+group))
		i = j
	}
	return strings.Join(out, " ")
}

// digitUnits spells out integers 0-999 for TTS input. Larger numbers are
// read digit-group by digit-group, which synthesisers handle acceptably.
var digitUnits = map[string][]string{
	"ru": {"ноль", "один", "два", "три", "четыре", "пять", "шесть", "семь", "восемь", "девять"},
	"en": {"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"},
}

var digitTens = map[string]map[int]string{
	"ru": {
		10: "десять", 11: "одиннадцать", 12: "двенадцать", 13: "тринадцать",
		14: "четырнадцать", 15: "пятнадцать", 16: "шестнадцать",
		17: "семнадцать", 18: "восемнадцать", 19: "девятнадцать",
		20: "двадцать", 30: "тридцать", 40: "сорок", 50: "пятьдесят",
		60: "шестьдесят", 70: "семьдесят", 80: "восемьдесят", 90: "девяносто",
	},
	"en": {
		10: "ten", 11: "eleven", 12: "twelve", 13: "thirteen", 14: "fourteen",
		15: "fifteen", 16: "sixteen", 17: "seventeen", 18: "eighteen",
		19: "nineteen", 20: "twenty", 30: "thirty", 40: "forty", 50: "fifty",
		60: "sixty", 70: "seventy", 80: "eighty", 90: "ninety",
	},
}

var digitHundreds = map[string]map[int]string{
	"ru": {
		100: "сто", 200: "двести", 300: "триста", 400: "четыреста",
		500: "пятьсот", 600: "шестьсот", 700: "семьсот", 800: "восемьсот",
		900: "девятьсот",
	},
}

// digitsToWords expands standalone integer tokens into spoken words for TTS.
// Non-numeric tokens and numbers the speller cannot express cleanly pass
// through unchanged.
func digitsToWords(text, lang string) string {
	if _, ok := digitUnits[lang]; !ok {
		return text
	}
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		core, trail := splitTrailingPunct(tok)
		n, err := strconv.Atoi(core)
		if err != nil || n < 0 || n > 9999 {
			out = append(out, tok)
			continue
		}
		spelled := spellInt(n, lang)
		if spelled == "" {
			out = append(out, tok)
			continue
		}
		out = append(out, spelled+trail)
	}
	return strings.Join(out, " ")
}

// spellInt spells a non-negative integer up to 9999, or returns "" when the
// language tables cannot express it.
func spellInt(n int, lang string) string {
	units := digitUnits[lang]
	tens := digitTens[lang]

	if n < 10 {
		return units[n]
	}
	if w, ok := tens[n]; ok {
		return w
	}
	if n < 100 {
		t := (n / 10) * 10
		if w, ok := tens[t]; ok {
			return w + " " + units[n%10]
		}
		return ""
	}
	if n < 1000 {
		h := (n / 100) * 100
		rest := n % 100
		var head string
		if lang == "en" {
			head = units[n/100] + " hundred"
		} else if w, ok := digitHundreds[lang][h]; ok {
			head = w
		} else {
			return ""
		}
		if rest == 0 {
			return head
		}
		tail := spellInt(rest, lang)
		if tail == "" {
			return ""
		}
		return head + " " + tail
	}
	// 1000-9999: spell thousands group then remainder.
	head := spellInt(n/1000, lang)
	if head == "" {
		return ""
	}
	thousand := "тысяч"
	if lang == "en" {
		thousand = "thousand"
	}
	rest := n % 1000
	if rest == 0 {
		return head + " " + thousand
	}
	tail := spellInt(rest, lang)
	if tail == "" {
		return ""
	}
	return head + " " + thousand + " " + tail
}

// splitTrailingPunct separates trailing sentence punctuation from a token so
// "5." spells as "пять." rather than passing through unexpanded.
func splitTrailingPunct(tok string) (core, trail string) {
	i := len(tok)
	for i > 0 {
		switch tok[i-1] {
		case '.', ',', '?', '!', ':':
			i--
		default:
			return tok[:i], tok[i:]
		}
	}
	return tok[:i], tok[i:]
}
