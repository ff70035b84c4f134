package pattern

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Wildcard matches exactly one segment.
	Wildcard = "*"

	// Separator splits event types into segments.
	Separator = "."
)

// ErrSyntax is the sentinel wrapped by every SyntaxError.
var ErrSyntax = errors.New("pattern: invalid syntax")

// SyntaxError describes a malformed pattern.
type SyntaxError struct {
	Pattern string
	Segment int
	Reason  string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("pattern %q: %s", e.Pattern, e.Reason)
	}
	return fmt.Sprintf("pattern %q: segment %d: %s", e.Pattern, e.Segment, e.Reason)
}

// Unwrap returns ErrSyntax so callers can use errors.Is.
func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

// Pattern is a compiled event type matcher. It is immutable and safe for
// concurrent use.
type Pattern struct {
	raw      string
	segments []string
	wild     bool
}

// Compile parses s into a Pattern.
func Compile(s string) (*Pattern, error) {
	if s == "" {
		return nil, &SyntaxError{Pattern: s, Segment: -1, Reason: "empty pattern"}
	}

	segments := strings.Split(s, Separator)
	wild := false
	for i, seg := range segments {
		switch {
		case seg == "":
			return nil, &SyntaxError{Pattern: s, Segment: i, Reason: "empty segment"}
		case seg == Wildcard:
			wild = true
		case strings.Contains(seg, Wildcard):
			return nil, &SyntaxError{Pattern: s, Segment: i, Reason: "wildcard must be a whole segment"}
		}
	}

	return &Pattern{raw: s, segments: segments, wild: wild}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(s string) *Pattern {
	p, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source text of the pattern.
func (p *Pattern) String() string {
	return p.raw
}

// HasWildcard reports whether any segment is a wildcard.
func (p *Pattern) HasWildcard() bool {
	return p.wild
}

// Len returns the number of segments.
func (p *Pattern) Len() int {
	return len(p.segments)
}

// Prefix returns the first segment when it is a literal. Indexes use it to
// narrow the candidates for an event type before calling Match.
func (p *Pattern) Prefix() (string, bool) {
	if p.segments[0] == Wildcard {
		return "", false
	}
	return p.segments[0], true
}

// Match reports whether eventType matches the pattern segment by segment.
func (p *Pattern) Match(eventType string) bool {
	rest := eventType
	for i, seg := range p.segments {
		head, tail, found := strings.Cut(rest, Separator)
		if head == "" {
			return false
		}
		if seg != Wildcard && seg != head {
			return false
		}
		if !found {
			return i == len(p.segments)-1
		}
		rest = tail
	}
	return false
}

// FirstSegment returns the segment of eventType before the first separator.
func FirstSegment(eventType string) string {
	head, _, _ := strings.Cut(eventType, Separator)
	return head
}
