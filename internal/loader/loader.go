// Package loader reads corpus and query files into the in-memory structures
// the equivalence run consumes.
//
// Two corpus formats are supported. "lines" treats every non-blank line as
// one document whose identifier is derived from its normalized text.
// "jsonl" reads one JSON object per line carrying an explicit identifier and
// either raw text or a pre-tokenized term list.
package loader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/digest"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

const (
	FormatLines = "lines"
	FormatJSONL = "jsonl"
)

// maxLineBytes bounds a single document line.
const maxLineBytes = 16 << 20

// Corpus is a loaded corpus. Text keeps the normalized source text of each
// document for human-readable reports.
type Corpus struct {
	Documents []corpus.RawDocument
	Text      map[string]string
}

type jsonDocument struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Terms []string `json:"terms"`
}

// LoadCorpusFile opens path and reads it in the given format.
func LoadCorpusFile(path, format string, tok tokenizer.Tokenizer) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()
	return LoadCorpus(f, format, tok)
}

func LoadCorpus(r io.Reader, format string, tok tokenizer.Tokenizer) (*Corpus, error) {
	switch format {
	case "", FormatLines:
		return loadLines(r, tok)
	case FormatJSONL:
		return loadJSONL(r, tok)
	default:
		return nil, apperrors.Newf(apperrors.ErrMalformedInput, "unknown corpus format %q", format)
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return sc
}

func loadLines(r io.Reader, tok tokenizer.Tokenizer) (*Corpus, error) {
	out := &Corpus{Text: make(map[string]string)}
	occurrences := make(map[string]int)
	sc := newScanner(r)
	for sc.Scan() {
		text := tokenizer.Normalize(sc.Text())
		if text == "" {
			continue
		}
		id := DocumentID(text, occurrences[text])
		occurrences[text]++
		out.Documents = append(out.Documents, corpus.RawDocument{ID: id, Terms: tok.Tokenize(text)})
		out.Text[id] = text
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus lines: %w", err)
	}
	return out, nil
}

// DocumentID derives a stable identifier from normalized text. Repeated
// lines are told apart by their occurrence index, starting at 0.
func DocumentID(normalized string, occurrence int) string {
	sum := digest.Bytes(digest.DocumentDomain, []byte(normalized))
	return fmt.Sprintf("%x-%d", sum[:8], occurrence)
}

func loadJSONL(r io.Reader, tok tokenizer.Tokenizer) (*Corpus, error) {
	out := &Corpus{Text: make(map[string]string)}
	sc := newScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var jd jsonDocument
		if err := json.Unmarshal([]byte(raw), &jd); err != nil {
			return nil, apperrors.Newf(apperrors.ErrMalformedInput, "corpus line %d: %v", line, err)
		}
		terms := jd.Terms
		if terms == nil {
			terms = tok.Tokenize(jd.Text)
		}
		out.Documents = append(out.Documents, corpus.RawDocument{ID: jd.ID, Terms: terms})
		if jd.Text != "" {
			out.Text[jd.ID] = tokenizer.Normalize(jd.Text)
		} else {
			out.Text[jd.ID] = strings.Join(terms, " ")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus jsonl: %w", err)
	}
	return out, nil
}

// QueriesFromStrings tokenizes ad-hoc query strings, naming them q1, q2, ...
func QueriesFromStrings(texts []string, tok tokenizer.Tokenizer) []corpus.Query {
	out := make([]corpus.Query, len(texts))
	for i, text := range texts {
		out[i] = corpus.Query{ID: fmt.Sprintf("q%d", i+1), Terms: tok.Tokenize(text)}
	}
	return out
}

// LoadQueriesFile reads a query file. See LoadQueries for after.
func LoadQueriesFile(path string, tok tokenizer.Tokenizer, after int) ([]corpus.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening queries %s: %w", path, err)
	}
	defer f.Close()
	return LoadQueries(f, tok, after)
}

// LoadQueries reads one query per non-blank line, either "id<TAB>text" or
// bare text. Bare lines are named q<after+position> so they continue the
// numbering of after queries already given elsewhere. Lines starting with #
// are comments.
func LoadQueries(r io.Reader, tok tokenizer.Tokenizer, after int) ([]corpus.Query, error) {
	var out []corpus.Query
	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, text, found := strings.Cut(line, "\t")
		if !found {
			id, text = fmt.Sprintf("q%d", after+len(out)+1), line
		}
		out = append(out, corpus.Query{ID: strings.TrimSpace(id), Terms: tok.Tokenize(text)})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading queries: %w", err)
	}
	return out, nil
}
