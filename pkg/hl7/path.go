package hl7

import (
	"strconv"
	"strings"
)

// maxDepth is the deepest position a path can address:
// field, component, subcomponent and repetition.
const maxDepth = 4

// Path addresses one leaf value inside a segment. Only the first Depth
// entries of Indices are meaningful; the rest stay zero so that two equal
// paths are equal as map keys.
type Path struct {
	Segment string
	Depth   int
	Indices [maxDepth]int
}

// NewPath builds a path for the given segment type and index chain. It
// panics when more than four indices are supplied.
func NewPath(segment string, indices ...int) Path {
	if len(indices) == 0 || len(indices) > maxDepth {
		panic("hl7: path needs between 1 and 4 indices")
	}
	p := Path{Segment: segment, Depth: len(indices)}
	copy(p.Indices[:], indices)
	return p
}

// ParsePath converts a dot-delimited path such as "PID.3.0" into a Path.
// Indices must be plain non-negative decimals without leading zeros, so that
// a dot-string which would never have matched a rendered key does not match
// here either.
func ParsePath(s string) (Path, bool) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > maxDepth+1 {
		return Path{}, false
	}
	p := Path{Segment: parts[0], Depth: len(parts) - 1}
	for i, part := range parts[1:] {
		n, ok := parseIndex(part)
		if !ok {
			return Path{}, false
		}
		p.Indices[i] = n
	}
	return p, true
}

func parseIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Field returns the field index of the path.
func (p Path) Field() int {
	return p.Indices[0]
}

// String renders the path in its dot-delimited form.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Segment)
	for i := 0; i < p.Depth; i++ {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(p.Indices[i]))
	}
	return b.String()
}

// Less orders paths by segment type and then index by index, with a
// shallower path sorting before any deeper path sharing its prefix.
func (p Path) Less(o Path) bool {
	if p.Segment != o.Segment {
		return p.Segment < o.Segment
	}
	for i := 0; i < maxDepth; i++ {
		if i >= p.Depth || i >= o.Depth {
			return p.Depth < o.Depth
		}
		if p.Indices[i] != o.Indices[i] {
			return p.Indices[i] < o.Indices[i]
		}
	}
	return false
}

// SegmentType returns the first dot-delimited token of a path string.
func SegmentType(path string) string {
	name, _, _ := strings.Cut(path, ".")
	return name
}
