// Package match provides the pattern-matching primitives shared by the
// decision engine and the config layer.
//
// Two URL behaviors coexist on purpose: the always-lists and ad-hoc
// intention URLs use lax substring containment, while bundle URL
// patterns use anchored globs. Callers pick the semantics; neither may
// be silently upgraded to the other, since that would change existing
// allow/block decisions.
package match

import (
	"regexp"
	"strings"
)

// Keyword reports whether the intention text matches a |-delimited
// keyword trigger. Pure substring containment per keyword, no word
// boundaries: trigger "art" matches "chart".
func Keyword(trigger, intentionText string) bool {
	text := strings.ToLower(intentionText)
	for _, kw := range strings.Split(trigger, "|") {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// NormalizeURL strips a leading https:// or http:// scheme and a
// leading www. prefix.
func NormalizeURL(raw string) string {
	s := strings.TrimPrefix(raw, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	return s
}

// URLContains reports whether candidate matches pattern under the lax
// substring semantics: the normalized candidate contains the
// normalized pattern, or the raw candidate contains the raw pattern
// (covers patterns that carry a scheme or www).
func URLContains(pattern, candidate string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(NormalizeURL(candidate), NormalizeURL(pattern)) {
		return true
	}
	return strings.Contains(candidate, pattern)
}

// DomainOf returns the normalized host portion of a URL: scheme and
// www stripped, truncated at the first path separator. Used as the
// identifier key for learned URL rules.
func DomainOf(raw string) string {
	s := NormalizeURL(raw)
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// Glob reports whether candidate fully matches the glob pattern.
// The pattern is anchored at both ends and case-insensitive; `*`
// matches zero or more characters, every other metacharacter is
// literal. An unparseable pattern never matches.
func Glob(pattern, candidate string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, part := range strings.Split(pattern, "*") {
		if part != "" {
			b.WriteString(regexp.QuoteMeta(part))
		}
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*") + "$"
	return regexp.Compile(expr)
}

// KeywordSignature derives the stored intention-pattern for a learned
// rule: the distinct lowercase words of length >= 4 joined with `|`.
// Falls back to the whole lowercased text when no word qualifies, so
// short intentions still produce a usable trigger.
func KeywordSignature(intentionText string) string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(strings.ToLower(intentionText)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	if len(words) == 0 {
		return strings.ToLower(strings.TrimSpace(intentionText))
	}
	return strings.Join(words, "|")
}
