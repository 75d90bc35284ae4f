package canon

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// legal suffixes stripped from the tail of a name before matching
var legalSuffixes = map[string]struct{}{
	"inc":     {},
	"llc":     {},
	"ltd":     {},
	"limited": {},
	"corp":    {},
	"co":      {},
	"gmbh":    {},
	"plc":     {},
	"ag":      {},
	"sa":      {},
	"bv":      {},
	"oy":      {},
	"ab":      {},
}

// Normalize reduces a raw surface form to its matching key: punctuation
// stripped, legal suffixes dropped, whitespace collapsed, words title-cased.
// Normalize("") and names made only of punctuation return "".
func Normalize(raw string) string {
	words := cleanWords(raw)
	for len(words) > 1 {
		last := strings.ToLower(words[len(words)-1])
		if _, ok := legalSuffixes[last]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return joinTitled(words)
}

// DisplayName cleans a raw surface form for use as the canonical display
// name. Unlike Normalize it keeps legal suffixes, so "Acme Inc." and
// "ACME, Inc" both display as "Acme Inc" while matching under "Acme".
func DisplayName(raw string) string {
	return joinTitled(cleanWords(raw))
}

func cleanWords(raw string) []string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&' || r == '-' || r == '\'':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func joinTitled(words []string) string {
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	runes := []rune(strings.ToLower(w))
	upper := true
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if upper {
				runes[i] = unicode.ToUpper(r)
			}
			upper = false
		} else {
			upper = true
		}
	}
	return string(runes)
}

// Similarity is a normalized edit-distance ratio in [0,1]. Identical strings
// score 1, fully disjoint strings score 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(max)
}
