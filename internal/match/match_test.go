package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyword_SubstringContainment(t *testing.T) {
	assert.True(t, Keyword("design|write", "Write design doc"))
	assert.True(t, Keyword("code", "writing CODE for the parser"))

	// No word-boundary semantics: "art" is contained in "chart".
	assert.True(t, Keyword("art", "update the chart"))

	assert.False(t, Keyword("music", "write design doc"))
	assert.False(t, Keyword("", "anything"))
}

func TestKeyword_MultipleTriggers(t *testing.T) {
	assert.True(t, Keyword("foo|doc|bar", "write design doc"))
	assert.False(t, Keyword("foo|bar", "write design doc"))
	// Empty segments are ignored, not treated as match-everything.
	assert.False(t, Keyword("|", "write design doc"))
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "github.com/a", NormalizeURL("https://github.com/a"))
	assert.Equal(t, "github.com/a", NormalizeURL("http://www.github.com/a"))
	assert.Equal(t, "github.com/a", NormalizeURL("github.com/a"))
}

func TestURLContains(t *testing.T) {
	// Normalized containment.
	assert.True(t, URLContains("github.com", "https://www.github.com/org/repo"))
	// Pattern carrying a scheme matches via raw containment.
	assert.True(t, URLContains("https://docs.rs", "https://docs.rs/serde"))
	// Substring semantics, not anchored.
	assert.True(t, URLContains("oogle.co", "https://google.com/search"))

	assert.False(t, URLContains("twitter.com", "https://github.com"))
	assert.False(t, URLContains("", "https://github.com"))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "twitter.com", DomainOf("https://twitter.com/home"))
	assert.Equal(t, "twitter.com", DomainOf("http://www.twitter.com"))
	assert.Equal(t, "example.com", DomainOf("example.com?q=1"))
}

func TestGlob_Anchored(t *testing.T) {
	assert.True(t, Glob("github.com/*", "github.com/org/repo"))
	assert.True(t, Glob("github.com/*", "GitHub.com/org")) // case-insensitive
	assert.True(t, Glob("*.google.com/search*", "docs.google.com/search?q=x"))

	// Whole-string anchoring: substring hits do not match.
	assert.False(t, Glob("github.com", "github.com/org"))
	assert.False(t, Glob("github.com/*", "https://github.com/org"))
}

func TestGlob_MetacharactersAreLiteral(t *testing.T) {
	assert.True(t, Glob("a.b?c", "a.b?c"))
	assert.False(t, Glob("a.b", "aXb"))
	// Regex metacharacters are escaped, never interpreted.
	assert.True(t, Glob("(", "("))
	assert.False(t, Glob("(x)", "x"))
}

func TestKeywordSignature(t *testing.T) {
	assert.Equal(t, "write|design", KeywordSignature("Write design doc"))
	assert.Equal(t, "review|quarterly|report", KeywordSignature("review the quarterly report"))
	// Short texts fall back to the whole lowercased text.
	assert.Equal(t, "fix ci", KeywordSignature("Fix CI"))
	// Signature matches the keyword trigger semantics it feeds.
	assert.True(t, Keyword(KeywordSignature("write design doc"), "design a new logo"))
}
