// Package tokenizer turns raw document and query text into term sequences.
// The same Tokenizer must be used for the corpus and the queries of a run;
// its Name is recorded in reports so a rerun can reproduce it.
package tokenizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kljensen/snowball/english"
)

// Tokenizer maps text to an ordered term sequence.
type Tokenizer interface {
	Name() string
	Tokenize(text string) []string
}

// New returns the tokenizer registered under name.
func New(name string) (Tokenizer, error) {
	switch name {
	case "", "simple":
		return Simple{}, nil
	case "light":
		return Light{}, nil
	case "snowball":
		return Snowball{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

var word = regexp.MustCompile(`[a-z0-9]+`)

// Normalize collapses whitespace runs to one space, trims, and lowercases.
// Line-corpus documents are normalized before hashing their identifiers.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Simple lowercases and keeps every maximal [a-z0-9]+ run. No stopwords, no
// stemming.
type Simple struct{}

func (Simple) Name() string { return "simple" }

func (Simple) Tokenize(text string) []string {
	return word.FindAllString(strings.ToLower(text), -1)
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// words splits on the same boundaries as Simple, dropping single characters
// and stopwords.
func words(text string) []string {
	raw := word.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, w := range raw {
		if len(w) < 2 {
			continue
		}
		if _, isStop := stopWords[w]; isStop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Light removes stopwords and strips common English suffixes with a small
// rule table.
type Light struct{}

func (Light) Name() string { return "light" }

func (Light) Tokenize(text string) []string {
	ws := words(text)
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		if s := stem(w); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

// First matching rule wins, so longer suffixes come first.
var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(w string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(w, rule.suffix) {
			stemmed := w[:len(w)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return w
}

// Snowball removes stopwords and applies the Porter2 English stemmer.
type Snowball struct{}

func (Snowball) Name() string { return "snowball" }

func (Snowball) Tokenize(text string) []string {
	ws := words(text)
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		if s := english.Stem(w, false); s != "" {
			out = append(out, s)
		}
	}
	return out
}
