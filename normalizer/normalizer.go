// Package normalizer canonicalizes note text before classification.
// Normalize is pure, deterministic and total: malformed input degrades to
// best-effort output, it never fails. The pipeline order is fixed; later
// steps assume earlier ones ran.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/c360/relaybridge/notemeta"
)

// PunctuationVariant selects which punctuation-stripping character class
// the pipeline applies. Two variants exist in the wild: one preserves
// quote characters, one strips them too.
type PunctuationVariant int

const (
	// KeepQuotes strips punctuation but leaves quote characters intact.
	KeepQuotes PunctuationVariant = iota
	// StripQuotes removes quote characters along with other punctuation.
	StripQuotes
)

var (
	mentionPattern = regexp.MustCompile(`(?i)(nostr:)?@?(nsec1|npub1|nevent1|naddr1|note1|nprofile1|nrelay1)[qpzry9x8gf2tvdw0s3jn54khce6mua7l]+\S*`)

	ordinalPattern = regexp.MustCompile(`(?i)\d+(st|nd|rd|th)`)

	hashtagCamelPattern = regexp.MustCompile(`#[a-zA-Z]*(?:[A-Z][a-z]+)+`)

	zapPattern = regexp.MustCompile(`(?i)zaps?(athon)?`)

	hexRunPattern = regexp.MustCompile(`(?i)(0x)?[0-9a-f]{6,}`)

	// Obfuscated slur forms are rewritten to one canonical spelling so the
	// hate-speech classifier scores them consistently.
	slurNPattern = regexp.MustCompile(`(?i)(\w+)?(n(i|1|l|\||!)g{2,}(ay?|ers?|4|3rs?|uh))`)
	slurFPattern = regexp.MustCompile(`(?i)fags?(\s|\n|\.|,|\?|!|'|"|\(|\)|\[|\]|\{|\}|$)|faggots`)
	slurCPattern = regexp.MustCompile(`(?i)cunts?(\s|\n|\.|,|\?|!|'|"|\(|\)|\[|\]|\{|\}|$)`)

	punctKeepQuotes  = regexp.MustCompile("[#*!?:(){}|\\[\\].,+\\-_–—=<>%@&$~;/\\\\\t\r\n]|\\d+|[【】「」（）。°•…]")
	punctStripQuotes = regexp.MustCompile("[#*!?:(){}|\\[\\].,+\\-_–—=<>%@&$\"“”’'`~;/\\\\\t\r\n]|\\d+|[【】「」（）。°•…]")

	whitespacePattern = regexp.MustCompile(`\s+`)
)

var greetings = map[string]string{
	"gm": "good morning",
	"gn": "good night",
	"pv": "pura vida gratitude happy life",
}

// Normalizer runs the canonicalization pipeline.
type Normalizer struct {
	punct *regexp.Regexp
}

// New creates a Normalizer using the given punctuation variant.
func New(variant PunctuationVariant) *Normalizer {
	n := &Normalizer{punct: punctKeepQuotes}
	if variant == StripQuotes {
		n.punct = punctStripQuotes
	}
	return n
}

// Normalize canonicalizes raw note text for classification.
func (n *Normalizer) Normalize(raw string) string {
	text := mentionPattern.ReplaceAllString(raw, " ")

	for _, u := range notemeta.ExtractURLs(text) {
		text = strings.ReplaceAll(text, u, " ")
	}

	text = ordinalPattern.ReplaceAllString(text, " ")
	text = collapseRepeats(text)
	text = splitHashtagCamelCase(text)
	text = canonicalizeSlurs(text)
	text = zapPattern.ReplaceAllString(text, "tip")
	text = hexRunPattern.ReplaceAllString(text, " ")
	text = n.punct.ReplaceAllString(text, " ")
	text = foldCase(text)
	text = expandGreetings(text)

	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.ToLower(strings.TrimSpace(text))
}

// collapseRepeats reduces runs of 3 or more identical letters to 2.
func collapseRepeats(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	var prev rune
	run := 0
	for _, r := range text {
		lower := unicode.ToLower(r)
		if unicode.IsLetter(r) && lower == prev {
			run++
		} else {
			run = 1
		}
		prev = lower
		if run > 2 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitHashtagCamelCase inserts spaces at lower-upper boundaries inside
// hashtags, turning "#WorldSummit" into "#World Summit".
func splitHashtagCamelCase(text string) string {
	return hashtagCamelPattern.ReplaceAllStringFunc(text, func(tag string) string {
		var b strings.Builder
		b.Grow(len(tag) + 4)

		var prev rune
		for i, r := range tag {
			if i > 0 && unicode.IsLower(prev) && unicode.IsUpper(r) {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
			prev = r
		}
		return b.String()
	})
}

func canonicalizeSlurs(text string) string {
	text = slurNPattern.ReplaceAllString(text, "niggers ")
	text = slurFPattern.ReplaceAllString(text, "faggot ")
	text = slurCPattern.ReplaceAllString(text, "cunt ")
	return text
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldCase tokenizes, strips combining diacritical marks and re-joins.
func foldCase(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if stripped, _, err := transform.String(diacriticStripper, tok); err == nil {
			tokens[i] = stripped
		}
	}
	return strings.Join(tokens, " ")
}

// expandGreetings replaces shorthand greeting tokens when they stand alone.
func expandGreetings(text string) string {
	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if expansion, ok := greetings[strings.ToLower(tok)]; ok {
			tokens[i] = expansion
		}
	}
	return strings.Join(tokens, " ")
}

// emojiRanges covers the private-use area and the common emoji blocks.
var emojiRanges = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1}, // zero-width joiner
		{Lo: 0x2600, Hi: 0x27BF, Stride: 1}, // misc symbols, dingbats
		{Lo: 0x2B00, Hi: 0x2BFF, Stride: 1},
		{Lo: 0xE000, Hi: 0xF8FF, Stride: 1}, // private use
		{Lo: 0xFE0E, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F000, Hi: 0x1F0FF, Stride: 1},
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1},
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1},
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1},
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1},
		{Lo: 0x1FA00, Hi: 0x1FAFF, Stride: 1},
	},
}

// StripEmoji replaces emoji glyphs with spaces.
func StripEmoji(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(emojiRanges, r) {
			return ' '
		}
		return r
	}, text)
}

// Truncate hard-cuts s at n-1 runes when it is longer than n runes.
// Not word-boundary aware.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1])
	}
	return s
}
