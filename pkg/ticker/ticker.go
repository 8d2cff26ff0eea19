// Package ticker finds cashtag mentions ($AAPL, $TSLA, ...) in free text and
// keeps per-symbol occurrence counts.
//
// Matching is purely lexical: a sigil followed by three or four word
// characters. Symbols are case-sensitive and never normalized, so "$aapl" and
// "$AAPL" are different keys. No lookup against a real ticker registry is
// performed.
//
// Usage:
//
//	counts := ticker.Extract("$AAPL up, $AAPL again, $TSLA")
//	// counts == ticker.Counts{"$AAPL": 2, "$TSLA": 1}
//
//	tally := ticker.Counts{}
//	tally.Merge(counts)
package ticker

import (
	"fmt"
	"regexp"
	"sort"
)

// DefaultPattern matches a "$" sigil followed by 3-4 word characters.
const DefaultPattern = `\$\w{3,4}`

var defaultExtractor = MustNewExtractor(DefaultPattern)

// Extractor scans text for symbol mentions using a fixed pattern.
type Extractor struct {
	pattern *regexp.Regexp
}

// NewExtractor compiles pattern into an Extractor
func NewExtractor(pattern string) (*Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid symbol pattern %q: %w", pattern, err)
	}
	return &Extractor{pattern: re}, nil
}

// MustNewExtractor is like NewExtractor but panics on an invalid pattern.
func MustNewExtractor(pattern string) *Extractor {
	e, err := NewExtractor(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// Pattern returns the source text of the extractor's pattern
func (e *Extractor) Pattern() string {
	return e.pattern.String()
}

// Extract returns a fresh Counts holding every non-overlapping match in text,
// scanned left to right. It never fails; no matches yields an empty map.
func (e *Extractor) Extract(text string) Counts {
	counts := make(Counts)
	for _, match := range e.pattern.FindAllString(text, -1) {
		counts[match]++
	}
	return counts
}

// Extract runs the default extractor over text.
func Extract(text string) Counts {
	return defaultExtractor.Extract(text)
}

// Counts maps a symbol to its number of occurrences. Keys are only present
// for counts greater than zero.
type Counts map[string]int

// Merge adds every count in other to c.
func (c Counts) Merge(other Counts) {
	for symbol, n := range other {
		if n <= 0 {
			continue
		}
		c[symbol] += n
	}
}

// Clone returns an independent copy of c
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for symbol, n := range c {
		out[symbol] = n
	}
	return out
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Entry is a single symbol/count pair.
type Entry struct {
	Symbol string
	Count  int
}

// Sorted returns the entries ordered by descending count, ties broken by
// symbol so the order is stable across runs.
func (c Counts) Sorted() []Entry {
	entries := make([]Entry, 0, len(c))
	for symbol, n := range c {
		entries = append(entries, Entry{Symbol: symbol, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries
}
