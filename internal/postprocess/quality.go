package postprocess

import (
	"regexp"
	"strings"
	"unicode"
)

// Reason names why a response failed the quality gate. The zero value means
// the text passed.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonForeignScript   Reason = "foreign_script"
	ReasonEnglishLeftover Reason = "english_leftover"
	ReasonPageReference   Reason = "page_reference"
)

// disallowedScripts are writing systems a Turkish answer never needs.
var disallowedScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
	unicode.Cyrillic,
	unicode.Arabic,
	unicode.Hebrew,
	unicode.Thai,
	unicode.Devanagari,
	unicode.Greek,
}

// englishLeftoverMin is the number of distinct English function words that
// marks an answer as not translated.
const englishLeftoverMin = 3

var (
	// RE2's \b is ASCII-only, so boundaries are spelled out over \p{L}.
	pageRef = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(sayfa|page|pp?\.)\s*\d+`)

	englishWords = map[string]bool{
		"the": true, "and": true, "this": true, "that": true, "with": true,
		"image": true, "picture": true, "there": true, "shows": true,
		"is": true, "are": true, "of": true, "in": true,
	}
)

// check is one entry of the quality gate. Checks run in order and the first
// failing one wins.
type check struct {
	reason Reason
	fails  func(string) bool
}

var checks = []check{
	{ReasonForeignScript, hasForeignScript},
	{ReasonEnglishLeftover, hasEnglishLeftover},
	{ReasonPageReference, pageRef.MatchString},
}

// Inspect runs the quality gate over text.
func Inspect(text string) Reason {
	for _, c := range checks {
		if c.fails(text) {
			return c.reason
		}
	}
	return ReasonNone
}

func isForeign(r rune) bool {
	return unicode.IsOneOf(disallowedScripts, r)
}

func hasForeignScript(s string) bool {
	return strings.IndexFunc(s, isForeign) >= 0
}

func hasEnglishLeftover(s string) bool {
	seen := map[string]struct{}{}
	for _, w := range wordRE.FindAllString(s, -1) {
		w = strings.ToLower(w)
		if !englishWords[w] {
			continue
		}
		seen[w] = struct{}{}
		if len(seen) >= englishLeftoverMin {
			return true
		}
	}
	return false
}

// TruncateForeign cuts text at the first rune of a disallowed script and
// keeps what came before it.
func TruncateForeign(text string) string {
	i := strings.IndexFunc(text, isForeign)
	if i < 0 {
		return text
	}
	return strings.TrimRightFunc(text[:i], unicode.IsSpace)
}
