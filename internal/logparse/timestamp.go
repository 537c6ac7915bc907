package logparse

import (
	"regexp"
	"strings"
	"time"
)

type timestampFormat struct {
	name  string
	re    *regexp.Regexp
	parse func(m []string) (time.Time, error)
}

// timestampFormats are tried in order; the first one that matches and parses wins.
var timestampFormats = []timestampFormat{
	{
		name: "iso",
		re:   regexp.MustCompile(`(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}:\d{2})(?:[.,](\d{1,9}))?(Z|[+-]\d{2}:?\d{2})?`),
		parse: func(m []string) (time.Time, error) {
			s := m[1] + "T" + m[2]
			if m[3] != "" {
				s += "." + m[3]
			}
			switch zone := m[4]; {
			case zone == "":
				s += "Z"
			case zone == "Z" || strings.Contains(zone, ":"):
				s += zone
			default:
				s += zone[:3] + ":" + zone[3:]
			}
			return time.Parse(time.RFC3339Nano, s)
		},
	},
	{
		name: "us",
		re:   regexp.MustCompile(`\d{2}/\d{2}/\d{4} \d{2}:\d{2}:\d{2}`),
		parse: func(m []string) (time.Time, error) {
			return time.Parse("01/02/2006 15:04:05", m[0])
		},
	},
	{
		name: "syslog",
		re:   regexp.MustCompile(`(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) [ \d]\d \d{2}:\d{2}:\d{2}`),
		parse: func(m []string) (time.Time, error) {
			return time.Parse("Jan _2 15:04:05", m[0])
		},
	},
}

// ParseTimestamp returns the first recognised timestamp in line.
func ParseTimestamp(line string) (time.Time, bool) {
	ts, _, ok := findTimestamp(line)
	return ts, ok
}

// findTimestamp also returns the byte offset just past the timestamp.
func findTimestamp(line string) (time.Time, int, bool) {
	for _, f := range timestampFormats {
		loc := f.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = line[loc[2*i]:loc[2*i+1]]
			}
		}
		ts, err := f.parse(m)
		if err != nil {
			continue
		}
		return ts, loc[1], true
	}
	return time.Time{}, 0, false
}

var levelRe = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|ERR|CRITICAL|CRIT|ALERT|EMERG|FATAL|SEVERE|EXCEPTION|PANIC)\b`)

var errorLevels = map[string]bool{
	"ERROR":     true,
	"ERR":       true,
	"CRITICAL":  true,
	"CRIT":      true,
	"ALERT":     true,
	"EMERG":     true,
	"FATAL":     true,
	"SEVERE":    true,
	"EXCEPTION": true,
	"PANIC":     true,
}

// header is a log entry line: a leading timestamp followed by a level.
type header struct {
	level   string
	isError bool
}

// parseHeader recognises lines that begin a log entry. The timestamp must
// start the line (optionally bracketed) and a level word must follow it.
func parseHeader(line string) (header, bool) {
	trimmed := strings.TrimLeft(line, " \t[")
	end := leadingTimestampEnd(trimmed)
	if end < 0 {
		return header{}, false
	}
	m := levelRe.FindStringSubmatch(trimmed[end:])
	if m == nil {
		return header{}, false
	}
	level := strings.ToUpper(m[1])
	return header{level: level, isError: errorLevels[level]}, true
}

func leadingTimestampEnd(s string) int {
	for _, f := range timestampFormats {
		if loc := f.re.FindStringIndex(s); loc != nil && loc[0] == 0 {
			return loc[1]
		}
	}
	return -1
}
