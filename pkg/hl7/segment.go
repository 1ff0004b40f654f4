package hl7

import (
	"strings"
	"sync"
)

// Segment is one line of a message. Its fields are parsed on first lookup
// and cached for the lifetime of the segment.
type Segment struct {
	index int
	typ   string
	raw   string

	once   sync.Once
	fields Fields
}

// NewSegment creates a segment for the line at the given position. The
// segment type is not derived here; the owning message sets it.
func NewSegment(index int, raw string) *Segment {
	return &Segment{index: index, raw: raw}
}

// EmptySegment returns a placeholder segment with no content and no type.
func EmptySegment() *Segment {
	return NewSegment(0, "")
}

// Index is the zero-based line position of the segment in its message.
func (s *Segment) Index() int {
	return s.index
}

// Type is the segment identifier, e.g. MSH or PID.
func (s *Segment) Type() string {
	return s.typ
}

// SetType sets the segment identifier. Values already parsed are re-keyed
// under the new type. It must not run concurrently with lookups.
func (s *Segment) SetType(typ string) {
	if typ == s.typ {
		return
	}
	s.typ = typ
	if s.fields != nil {
		s.fields = s.fields.rename(s.keyPrefix())
	}
}

// Raw returns the line as stored, after control characters were stripped.
func (s *Segment) Raw() string {
	return s.raw
}

// Value returns the value at path, or "" when the path is not a leaf of
// this segment. A present but empty value is indistinguishable from a miss;
// use Lookup when that matters.
func (s *Segment) Value(path string) string {
	v, _ := s.Lookup(path)
	return v
}

// Lookup returns the value at path and whether the path is present.
func (s *Segment) Lookup(path string) (string, bool) {
	return s.parsed().Get(path)
}

// Fields returns a copy of the parsed leaf values.
func (s *Segment) Fields() Fields {
	parsed := s.parsed()
	out := make(Fields, len(parsed))
	for p, v := range parsed {
		out[p] = v
	}
	return out
}

// Paths lists the dot-delimited paths present in the segment, in order.
func (s *Segment) Paths() []string {
	paths := s.parsed().Paths()
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

func (s *Segment) parsed() Fields {
	s.once.Do(func() {
		s.fields = Parse(s.keyPrefix(), s.raw)
	})
	return s.fields
}

func (s *Segment) keyPrefix() string {
	if s.typ != "" {
		return s.typ
	}
	name, _, _ := strings.Cut(s.raw, FieldSeparator)
	return name
}
