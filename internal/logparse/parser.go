package logparse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/classify"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// DefaultMaxTraceLines bounds ErrorRecord.Trace when Options leaves it unset.
const DefaultMaxTraceLines = 20

// Frequency thresholds at which a kind's base severity is escalated.
const (
	escalateOnce  = 3
	escalateTwice = 10
)

var (
	tracebackRe = regexp.MustCompile(`^\s*Traceback \(most recent call last\):`)
	frameRe     = regexp.MustCompile(`^(?:at |File "|goroutine \d+)`)
)

// Options configures a Parser.
type Options struct {
	MaxTraceLines int
}

// Parser splits raw log text into error records.
type Parser struct {
	cls      *classify.Classifier
	maxTrace int
}

// New creates a Parser that classifies blocks with cls.
func New(cls *classify.Classifier, opts Options) *Parser {
	limit := opts.MaxTraceLines
	if limit <= 0 {
		limit = DefaultMaxTraceLines
	}
	return &Parser{cls: cls, maxTrace: limit}
}

type block struct {
	lines    []string
	kindLine int // index into lines of the first error-kind line, -1 if none
}

func newBlock(line string, hasKind bool) *block {
	b := &block{lines: []string{line}, kindLine: -1}
	if hasKind {
		b.kindLine = 0
	}
	return b
}

type splitState int

const (
	stateLeading splitState = iota // before any log entry header
	stateInBlock
	stateSkipping // inside a non-error log entry
)

// Parse returns one record per error block, in the order blocks appear.
// It never fails: blocks it cannot classify become unclassified records.
func (p *Parser) Parse(text string) []pipeline.ErrorRecord {
	blocks := p.split(text)
	records := make([]pipeline.ErrorRecord, 0, len(blocks))
	for i, b := range blocks {
		records = append(records, p.buildRecord(i, b))
	}
	assignSeverity(p.cls.Catalog(), records)
	return records
}

func (p *Parser) split(text string) []*block {
	var (
		blocks []*block
		cur    *block
		state  = stateLeading
	)
	closeBlock := func() {
		if cur != nil {
			blocks = append(blocks, cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		if h, ok := parseHeader(line); ok {
			closeBlock()
			// A non-error entry is skipped unless the line itself names an error kind.
			if hasKind := p.cls.Matches(line); h.isError || hasKind {
				cur = newBlock(line, hasKind)
				state = stateInBlock
			} else {
				state = stateSkipping
			}
			continue
		}

		hasKind := p.cls.Matches(line)
		switch {
		case hasKind && cur != nil && cur.kindLine < 0:
			cur.kindLine = len(cur.lines)
			cur.lines = append(cur.lines, line)
		case hasKind && cur != nil && strings.Contains(cur.lines[cur.kindLine], strings.TrimSpace(line)):
			cur.lines = append(cur.lines, line)
		case hasKind && cur != nil && continuesTrace(cur.lines[len(cur.lines)-1]):
			// Final line of a traceback or a chained cause inside the open block.
			cur.lines = append(cur.lines, line)
		case hasKind:
			closeBlock()
			cur = newBlock(line, true)
			state = stateInBlock
		case cur == nil && tracebackRe.MatchString(line):
			cur = newBlock(line, false)
			state = stateInBlock
		case cur != nil:
			cur.lines = append(cur.lines, line)
		case state == stateLeading:
			cur = newBlock(line, false)
			state = stateInBlock
		}
	}
	closeBlock()
	return blocks
}

// continuesTrace reports whether the line before a kind line leaves a
// traceback open: a Traceback header, an indented frame or source line, or a
// stack frame.
func continuesTrace(prev string) bool {
	if tracebackRe.MatchString(prev) {
		return true
	}
	if prev != "" && (prev[0] == ' ' || prev[0] == '\t') {
		return true
	}
	return frameRe.MatchString(prev)
}

func (p *Parser) buildRecord(index int, b *block) pipeline.ErrorRecord {
	rec := pipeline.ErrorRecord{
		ID:       fmt.Sprintf("rec-%03d", index+1),
		Kind:     catalog.Unclassified,
		Message:  strings.TrimSpace(b.lines[0]),
		Location: lastLocation(b.lines),
		Trace:    boundTrace(b.lines, p.maxTrace),
	}
	if ts, ok := ParseTimestamp(b.lines[0]); ok {
		rec.Timestamp = &ts
	}

	text := strings.Join(b.lines, "\n")
	if m, ok := p.cls.Best(text); ok {
		rec.Kind = m.Kind
		rec.Signature = m.Signature
		rec.Message = messageAt(text, m.Offset)
	}
	return rec
}

// messageAt returns the line containing offset, starting from the beginning
// of the word the match falls in (keeps qualified names like
// json.decoder.JSONDecodeError intact).
func messageAt(text string, offset int) string {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}
	start := offset
	for start > lineStart && !unicode.IsSpace(rune(text[start-1])) && text[start-1] != ']' {
		start--
	}
	return strings.TrimSpace(text[start:lineEnd])
}

// boundTrace keeps the first line and the last limit-1 lines of a block.
func boundTrace(lines []string, limit int) []string {
	if len(lines) <= limit {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
	out := make([]string, 0, limit)
	out = append(out, lines[0])
	out = append(out, lines[len(lines)-(limit-1):]...)
	return out
}

// assignSeverity sets each record's severity from its kind's base severity,
// escalated by how often the kind occurs in the run.
func assignSeverity(cat *catalog.Catalog, records []pipeline.ErrorRecord) {
	counts := make(map[catalog.Kind]int)
	for _, r := range records {
		counts[r.Kind]++
	}
	for i := range records {
		base := catalog.SeverityLow
		if e, ok := cat.Lookup(records[i].Kind); ok {
			base = e.Severity
		}
		levels := 0
		switch n := counts[records[i].Kind]; {
		case n >= escalateTwice:
			levels = 2
		case n >= escalateOnce:
			levels = 1
		}
		records[i].Severity = base.Escalate(levels)
	}
}
