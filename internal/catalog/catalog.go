package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogYAML []byte

// Template is the fix template attached to a kind. All text fields are
// text/template sources rendered against the record's identifiers.
type Template struct {
	Title       string   `yaml:"title" toml:"title"`
	Explanation string   `yaml:"explanation" toml:"explanation"`
	Before      string   `yaml:"before" toml:"before"`
	After       string   `yaml:"after" toml:"after"`
	Prevention  string   `yaml:"prevention" toml:"prevention"`
	Requires    []string `yaml:"requires,omitempty" toml:"requires"`
}

// Entry maps one kind to its detection signatures and fix template.
type Entry struct {
	Kind              Kind     `yaml:"kind" toml:"kind"`
	Severity          Severity `yaml:"severity" toml:"severity"`
	Signatures        []string `yaml:"signatures,omitempty" toml:"signatures"`
	MessageExtractors []string `yaml:"message_extractors,omitempty" toml:"message_extractors"`
	SourceExtractors  []string `yaml:"source_extractors,omitempty" toml:"source_extractors"`
	Template          Template `yaml:"template" toml:"template"`

	signatures []Signature
	msgEx      []*regexp.Regexp
	srcEx      []*regexp.Regexp
}

// Signature is a compiled detection pattern.
type Signature struct {
	Pattern string
	Re      *regexp.Regexp
}

// CompiledSignatures returns the entry's signatures in declaration order.
func (e Entry) CompiledSignatures() []Signature {
	return e.signatures
}

// MessageExtractorRes returns the compiled message extractors.
func (e Entry) MessageExtractorRes() []*regexp.Regexp {
	return e.msgEx
}

// SourceExtractorRes returns the compiled source-line extractors.
func (e Entry) SourceExtractorRes() []*regexp.Regexp {
	return e.srcEx
}

// IdentifierNames returns every identifier the entry can produce or requires,
// in first-seen order.
func (e Entry) IdentifierNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		names = append(names, n)
	}
	for _, re := range e.msgEx {
		for _, n := range re.SubexpNames() {
			add(n)
		}
	}
	for _, re := range e.srcEx {
		for _, n := range re.SubexpNames() {
			add(n)
		}
	}
	for _, n := range e.Template.Requires {
		add(n)
	}
	return names
}

// Catalog is an immutable, ordered set of entries. Safe for concurrent use.
type Catalog struct {
	entries []Entry
	byKind  map[Kind]int
}

type catalogFile struct {
	Entries []Entry `yaml:"entries" toml:"entries"`
}

// New validates and compiles entries into a Catalog. Entry order is the
// declaration order used for classification tie-breaks. A missing
// unclassified entry is filled in from the default catalog.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{byKind: make(map[Kind]int)}
	var errs []error

	for i, e := range entries {
		if !e.Kind.Valid() {
			errs = append(errs, fmt.Errorf("entries[%d]: unknown kind %q", i, e.Kind))
			continue
		}
		if _, dup := c.byKind[e.Kind]; dup {
			errs = append(errs, fmt.Errorf("entries[%d]: duplicate kind %q", i, e.Kind))
			continue
		}
		if err := compileEntry(&e); err != nil {
			errs = append(errs, fmt.Errorf("entries[%d] (%s): %w", i, e.Kind, err))
			continue
		}
		c.byKind[e.Kind] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if _, ok := c.byKind[Unclassified]; !ok {
		def, err := Default()
		if err != nil {
			return nil, err
		}
		c.byKind[Unclassified] = len(c.entries)
		c.entries = append(c.entries, def.Fallback())
	}
	return c, nil
}

func compileEntry(e *Entry) error {
	if e.Kind == Unclassified && len(e.Signatures) > 0 {
		return fmt.Errorf("unclassified entry must not declare signatures")
	}
	e.signatures = make([]Signature, 0, len(e.Signatures))
	for _, p := range e.Signatures {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("signature %q: %w", p, err)
		}
		e.signatures = append(e.signatures, Signature{Pattern: p, Re: re})
	}
	var err error
	if e.msgEx, err = compileAll(e.MessageExtractors, "message extractor"); err != nil {
		return err
	}
	if e.srcEx, err = compileAll(e.SourceExtractors, "source extractor"); err != nil {
		return err
	}
	for name, src := range map[string]string{
		"title":       e.Template.Title,
		"explanation": e.Template.Explanation,
		"before":      e.Template.Before,
		"after":       e.Template.After,
		"prevention":  e.Template.Prevention,
	} {
		if _, err := template.New(name).Option("missingkey=error").Parse(src); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
	}
	if e.Template.After == "" {
		return fmt.Errorf("template after is required")
	}
	return nil
}

func compileAll(patterns []string, what string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", what, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return New(f.Entries)
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(defaultCatalogYAML, &f); err != nil {
		return nil, fmt.Errorf("parse default catalog: %w", err)
	}
	// New falls back to Default for a missing unclassified entry; the
	// embedded catalog always has one, so build it directly.
	c := &Catalog{byKind: make(map[Kind]int)}
	for i, e := range f.Entries {
		if err := compileEntry(&e); err != nil {
			return nil, fmt.Errorf("default catalog entries[%d] (%s): %w", i, e.Kind, err)
		}
		c.byKind[e.Kind] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	if _, ok := c.byKind[Unclassified]; !ok {
		return nil, fmt.Errorf("default catalog has no %s entry", Unclassified)
	}
	return c, nil
})

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return loadDefault()
}

// MustDefault is Default for package initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Entries returns the entries in declaration order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the entry for kind.
func (c *Catalog) Lookup(k Kind) (Entry, bool) {
	i, ok := c.byKind[k]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Fallback returns the unclassified entry.
func (c *Catalog) Fallback() Entry {
	return c.entries[c.byKind[Unclassified]]
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
