// Package postprocess normalizes model output before it reaches the user.
package postprocess

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultFallback is returned when nothing usable is left after cleaning.
const DefaultFallback = "Üzgünüm, bir hata oluştu. Lütfen tekrar dene."

// DefaultWords maps formal second-person forms to their informal
// equivalents. Matching is on whole words and keeps the capitalization of the
// first letter.
var DefaultWords = map[string]string{
	"size":           "sana",
	"sizi":           "seni",
	"sizin":          "senin",
	"sizinle":        "seninle",
	"siz":            "sen",
	"sizce":          "sence",
	"sizde":          "sende",
	"sizden":         "senden",
	"olabilirsiniz":  "olabilirsin",
	"isterseniz":     "istersen",
	"misiniz":        "misin",
	"musunuz":        "musun",
	"edebilirsiniz":  "edebilirsin",
	"yapabilirsiniz": "yapabilirsin",
	"bilmelisiniz":   "bilmelisin",
}

// DefaultBanned are boilerplate fragments removed verbatim.
var DefaultBanned = []string{
	"Bir yapay zeka dil modeli olarak, ",
	"Bir yapay zeka dil modeli olarak ",
	"Bir yapay zeka olarak, ",
	"As an AI language model, ",
	"(Kaynak: internet)",
	"Umarım yardımcı olabilmişimdir!",
	"<|im_end|>",
	"<|im_start|>",
	"</s>",
}

var (
	wordRE     = regexp.MustCompile(`\p{L}+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRuns  = regexp.MustCompile(`[ \t]{2,}`)
)

// Options configures a Cleaner. Nil fields take the defaults above.
type Options struct {
	Words    map[string]string
	Banned   []string
	Fallback string
}

// Cleaner applies the fixed output pipeline. It is stateless and safe for
// concurrent use.
type Cleaner struct {
	words    map[string]string
	banned   []string
	fallback string
}

// New returns a Cleaner with opts applied over the defaults.
func New(opts Options) *Cleaner {
	c := &Cleaner{words: DefaultWords, banned: DefaultBanned, fallback: DefaultFallback}
	if opts.Words != nil {
		c.words = make(map[string]string, len(opts.Words))
		for k, v := range opts.Words {
			c.words[strings.ToLower(k)] = v
		}
	}
	if opts.Banned != nil {
		c.banned = opts.Banned
	}
	if opts.Fallback != "" {
		c.fallback = opts.Fallback
	}
	return c
}

// Fallback is the apology used for empty output.
func (c *Cleaner) Fallback() string { return c.fallback }

// maxPasses bounds the rerun of the pipeline. Each pass only removes text or
// replaces formal words with informal ones, so it settles in a few passes.
const maxPasses = 8

// Clean runs script truncation, informal-address substitution, banned
// phrase removal and whitespace normalization, in that order. The steps are
// repeated until the text stops changing: removing a banned fragment can
// join a formal word back together or expose another banned fragment.
func (c *Cleaner) Clean(text string) string {
	for i := 0; i < maxPasses; i++ {
		next := c.pass(text)
		if next == text {
			break
		}
		text = next
	}
	if text == "" {
		return c.fallback
	}
	return text
}

func (c *Cleaner) pass(text string) string {
	text = TruncateForeign(text)
	text = c.substitute(text)
	text = c.removeBanned(text)
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// removeBanned deletes banned fragments until none is left.
func (c *Cleaner) removeBanned(text string) string {
	for {
		prev := text
		for _, b := range c.banned {
			if b != "" {
				text = strings.ReplaceAll(text, b, "")
			}
		}
		if text == prev {
			return text
		}
	}
}

func (c *Cleaner) substitute(text string) string {
	return wordRE.ReplaceAllStringFunc(text, func(w string) string {
		repl, ok := c.words[turkishLower(w)]
		if !ok {
			return w
		}
		return matchCase(w, repl)
	})
}

// turkishLower lowercases with the dotted/dotless i distinction.
func turkishLower(s string) string {
	s = strings.ReplaceAll(s, "I", "ı")
	s = strings.ReplaceAll(s, "İ", "i")
	return strings.ToLower(s)
}

func matchCase(orig, repl string) string {
	r := []rune(orig)
	if len(r) > 1 && orig == strings.ToUpper(orig) {
		return turkishUpper(repl)
	}
	if len(r) > 0 && unicode.IsUpper(r[0]) {
		rr := []rune(repl)
		head := turkishUpper(string(rr[0]))
		return head + string(rr[1:])
	}
	return repl
}

func turkishUpper(s string) string {
	s = strings.ReplaceAll(s, "i", "İ")
	s = strings.ReplaceAll(s, "ı", "I")
	return strings.ToUpper(s)
}
