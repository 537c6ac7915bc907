package synth

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasnoah/fixfactory/internal/catalog"
	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

// Built-in identifiers available to every template.
const (
	identStatement = "statement"
	identIndent    = "indent"
	identFile      = "file"
	identLine      = "line"
)

// extractIdentifiers collects named groups from the message extractors and
// then from the source extractors run over the failing line. The first value
// seen for a name wins, so message values take precedence.
func extractIdentifiers(e catalog.Entry, message, sourceLine string) map[string]string {
	ids := make(map[string]string)
	collect(ids, e.MessageExtractorRes(), message)
	if sourceLine != "" {
		collect(ids, e.SourceExtractorRes(), sourceLine)
	}
	return ids
}

func collect(into map[string]string, res []*regexp.Regexp, text string) {
	for _, re := range res {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for i, name := range re.SubexpNames() {
			if name == "" || m[i] == "" {
				continue
			}
			if _, ok := into[name]; !ok {
				into[name] = strings.TrimSpace(m[i])
			}
		}
	}
}

// addBuiltins fills statement, indent, file and line from the record and
// excerpt, using placeholders when they are unknown.
func addBuiltins(ids map[string]string, rec pipeline.ErrorRecord, sourceLine string, hasSource bool) {
	if hasSource {
		trimmed := strings.TrimLeft(sourceLine, " \t")
		ids[identStatement] = strings.TrimSpace(trimmed)
		ids[identIndent] = sourceLine[:len(sourceLine)-len(trimmed)]
	} else {
		ids[identStatement] = placeholder(identStatement)
		ids[identIndent] = ""
	}
	if rec.Location != nil {
		ids[identFile] = rec.Location.File
		ids[identLine] = strconv.Itoa(rec.Location.Line)
	} else {
		ids[identFile] = placeholder(identFile)
		ids[identLine] = placeholder(identLine)
	}
}

// fillPlaceholders gives every identifier the entry knows about a value and
// reports whether any required one had to be invented.
func fillPlaceholders(ids map[string]string, e catalog.Entry) (missingRequired bool) {
	for _, name := range e.IdentifierNames() {
		if _, ok := ids[name]; !ok {
			ids[name] = placeholder(name)
		}
	}
	for _, name := range e.Template.Requires {
		if ids[name] == placeholder(name) {
			missingRequired = true
		}
	}
	return missingRequired
}

func placeholder(name string) string {
	return "<" + name + ">"
}
