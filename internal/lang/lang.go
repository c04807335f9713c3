// Package lang holds the language-group rules and text normalization shared
// by the translation cache and the interval recorder.
package lang

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// Auto is the settings value asking for the source language to be inferred.
const Auto = "auto"

// NormalizeText trims and collapses every whitespace run into a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CharCount counts the non-space runes of the normalized text.
func CharCount(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// Canonical returns the BCP 47 form of code, or the trimmed input when it
// does not parse.
func Canonical(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, Auto) {
		return strings.ToLower(code)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}

// Equivalent reports whether two language codes belong to the same group.
// Regional variants are equal (en-US, en-GB) while differing base languages
// or writing systems are not (zh-Hans, zh-Hant). An empty or "auto" code is
// never equivalent to anything.
func Equivalent(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" || strings.EqualFold(a, Auto) || strings.EqualFold(b, Auto) {
		return false
	}

	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}

	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	if baseA != baseB {
		return false
	}

	scriptA, _ := ta.Script()
	scriptB, _ := tb.Script()
	return scriptA == scriptB
}

// Detect picks the most frequent language among texts using a coarse
// per-line classifier. It returns "" when nothing could be classified.
func Detect(texts []string) string {
	counts := make(map[string]int)
	for _, text := range texts {
		text = NormalizeText(text)
		if text == "" {
			continue
		}
		code := whatlanggo.DetectLang(text).Iso6391()
		if code == "" {
			continue
		}
		counts[code]++
	}

	var top string
	var topCount int
	for code, count := range counts {
		if count > topCount || (count == topCount && code < top) {
			top = code
			topCount = count
		}
	}
	if top == "" {
		return ""
	}
	return Canonical(top)
}

// Effective resolves the source language used for cache keys and the skip
// policy: an explicit setting wins, then the track's declared language,
// then detection over sample texts.
func Effective(setting, trackLanguage string, samples []string) string {
	if s := strings.TrimSpace(setting); s != "" && !strings.EqualFold(s, Auto) {
		return Canonical(s)
	}
	if t := strings.TrimSpace(trackLanguage); t != "" {
		return Canonical(t)
	}
	return Detect(samples)
}
