package classify

import (
	"github.com/lucasnoah/fixfactory/internal/catalog"
)

// Match describes the signature that decided a classification.
type Match struct {
	Kind      catalog.Kind
	Signature string
	Offset    int
	Text      string

	entry int
	sig   int
}

// Classifier resolves text to a catalog kind. Safe for concurrent use.
type Classifier struct {
	cat     *catalog.Catalog
	entries []catalog.Entry
}

// New creates a Classifier over cat.
func New(cat *catalog.Catalog) *Classifier {
	return &Classifier{cat: cat, entries: cat.Entries()}
}

// Catalog returns the catalog the classifier matches against.
func (c *Classifier) Catalog() *catalog.Catalog {
	return c.cat
}

// Classify returns the winning kind for text, or catalog.Unclassified.
func (c *Classifier) Classify(text string) catalog.Kind {
	m, ok := c.Best(text)
	if !ok {
		return catalog.Unclassified
	}
	return m.Kind
}

// Best returns the winning match. Every signature of every entry is tried;
// among matches the earliest offset wins, then the longer signature, then
// catalog declaration order.
func (c *Classifier) Best(text string) (Match, bool) {
	var best Match
	found := false
	for ei, e := range c.entries {
		for si, sig := range e.CompiledSignatures() {
			loc := sig.Re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			cand := Match{
				Kind:      e.Kind,
				Signature: sig.Pattern,
				Offset:    loc[0],
				Text:      text[loc[0]:loc[1]],
				entry:     ei,
				sig:       si,
			}
			if !found || better(cand, best) {
				best = cand
				found = true
			}
		}
	}
	return best, found
}

func better(a, b Match) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	if len(a.Signature) != len(b.Signature) {
		return len(a.Signature) > len(b.Signature)
	}
	if a.entry != b.entry {
		return a.entry < b.entry
	}
	return a.sig < b.sig
}

// Matches reports whether any signature matches text.
func (c *Classifier) Matches(text string) bool {
	for _, e := range c.entries {
		for _, sig := range e.CompiledSignatures() {
			if sig.Re.MatchString(text) {
				return true
			}
		}
	}
	return false
}
