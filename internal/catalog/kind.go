package catalog

import (
	"fmt"
	"strings"
)

// Kind is the taxonomy entry an error record is classified into.
type Kind string

const (
	DivisionByZero   Kind = "division-by-zero"
	MissingKey       Kind = "missing-key"
	IndexOutOfRange  Kind = "index-out-of-range"
	InvalidValue     Kind = "invalid-value"
	TypeMismatch     Kind = "type-mismatch"
	MissingAttribute Kind = "missing-attribute"
	MissingResource  Kind = "missing-resource"
	MalformedData    Kind = "malformed-data"
	Unclassified     Kind = "unclassified"
)

// Kinds lists every known kind in declaration order.
var Kinds = []Kind{
	DivisionByZero,
	MissingKey,
	IndexOutOfRange,
	InvalidValue,
	TypeMismatch,
	MissingAttribute,
	MissingResource,
	MalformedData,
	Unclassified,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Definitive reports whether k is a real classification rather than the fallback.
func (k Kind) Definitive() bool {
	return k != Unclassified && k != ""
}

// Severity ranks how urgent an error record is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = []string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity converts a name like "high" to a Severity.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", name)
}

// Escalate raises s by the given number of levels, capped at critical.
func (s Severity) Escalate(levels int) Severity {
	out := s + Severity(levels)
	if out > SeverityCritical {
		return SeverityCritical
	}
	if out < SeverityLow {
		return SeverityLow
	}
	return out
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
