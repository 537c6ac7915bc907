package synth

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Synthesizer renders catalog fix templates for records. Safe for
// concurrent use.
type Synthesizer struct {
	cat       *catalog.Catalog
	templates map[catalog.Kind]*compiled
	logger    *zap.Logger
}

type compiled struct {
	title, explanation, before, after, prevention *template.Template
}

// New compiles every template in cat.
func New(cat *catalog.Catalog, logger *zap.Logger) (*Synthesizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synthesizer{
		cat:       cat,
		templates: make(map[catalog.Kind]*compiled, cat.Len()),
		logger:    logger,
	}
	for _, e := range cat.Entries() {
		c, err := compileTemplate(e)
		if err != nil {
			return nil, fmt.Errorf("compile template for %s: %w", e.Kind, err)
		}
		s.templates[e.Kind] = c
	}
	return s, nil
}

func compileTemplate(e catalog.Entry) (*compiled, error) {
	parse := func(name, src string) (*template.Template, error) {
		return template.New(string(e.Kind) + "." + name).Option("missingkey=error").Parse(src)
	}
	var (
		c   compiled
		err error
	)
	if c.title, err = parse("title", e.Template.Title); err != nil {
		return nil, err
	}
	if c.explanation, err = parse("explanation", e.Template.Explanation); err != nil {
		return nil, err
	}
	if c.before, err = parse("before", e.Template.Before); err != nil {
		return nil, err
	}
	if c.after, err = parse("after", e.Template.After); err != nil {
		return nil, err
	}
	if c.prevention, err = parse("prevention", e.Template.Prevention); err != nil {
		return nil, err
	}
	return &c, nil
}

// Synthesize produces the fix suggestion for rec. The returned suggestion is
// always usable; a non-nil error reports a degradation (cancelled before
// rendering, or a template that failed and was replaced by the generic one).
func (s *Synthesizer) Synthesize(ctx context.Context, rec pipeline.ErrorRecord, ex *pipeline.Excerpt) (pipeline.FixSuggestion, error) {
	var softErr error
	if err := ctx.Err(); err != nil {
		softErr = fmt.Errorf("synthesize %s without context: %w", rec.ID, err)
		ex = nil
	}

	entry, ok := s.cat.Lookup(rec.Kind)
	if !ok {
		entry = s.cat.Fallback()
	}
	sourceLine, hasSource := ex.FailingLine()

	ids := extractIdentifiers(entry, rec.Message, sourceLine)
	addBuiltins(ids, rec, sourceLine, hasSource)
	missing := fillPlaceholders(ids, entry)

	ev := pipeline.Evidence{
		Definitive:         rec.Kind.Definitive(),
		HasLocation:        rec.Location != nil,
		HasContext:         hasSource,
		MissingIdentifiers: missing,
	}

	sugg, err := s.render(entry.Kind, ids)
	if err != nil {
		s.logger.Warn("fix template failed, using generic template",
			zap.String("record", rec.ID),
			zap.String("kind", string(entry.Kind)),
			zap.Error(err))
		softErr = fmt.Errorf("render %s template for %s: %w", entry.Kind, rec.ID, err)
		fallback := s.cat.Fallback()
		fillPlaceholders(ids, fallback)
		var ferr error
		if sugg, ferr = s.render(fallback.Kind, ids); ferr != nil {
			sugg = minimalSuggestion(ids)
		}
	}

	sugg.RecordID = rec.ID
	sugg.Kind = rec.Kind
	sugg.Evidence = ev
	sugg.Confidence = Confidence(ev)
	sugg.Identifiers = ids
	return sugg, softErr
}

func (s *Synthesizer) render(kind catalog.Kind, ids map[string]string) (pipeline.FixSuggestion, error) {
	c, ok := s.templates[kind]
	if !ok {
		return pipeline.FixSuggestion{}, fmt.Errorf("no template for %s", kind)
	}
	var out pipeline.FixSuggestion
	for _, f := range []struct {
		tmpl *template.Template
		dst  *string
	}{
		{c.title, &out.Title},
		{c.explanation, &out.Explanation},
		{c.before, &out.OriginalExcerpt},
		{c.after, &out.ProposedExcerpt},
		{c.prevention, &out.PreventionNote},
	} {
		var buf bytes.Buffer
		if err := f.tmpl.Execute(&buf, ids); err != nil {
			return pipeline.FixSuggestion{}, err
		}
		*f.dst = strings.TrimRight(buf.String(), "\n")
	}
	return out, nil
}

func minimalSuggestion(ids map[string]string) pipeline.FixSuggestion {
	return pipeline.FixSuggestion{
		Title:           "Review the failing statement",
		OriginalExcerpt: ids[identIndent] + ids[identStatement],
		ProposedExcerpt: ids[identIndent] + ids[identStatement],
		Explanation:     fmt.Sprintf("Inspect %s:%s and handle the failure explicitly.", ids[identFile], ids[identLine]),
	}
}
