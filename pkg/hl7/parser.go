package hl7

import (
	"sort"
	"strings"
)

// Delimiters of the standard HL7 v2 encoding.
const (
	FieldSeparator        = "|"
	ComponentSeparator    = "^"
	SubcomponentSeparator = "&"
	RepetitionSeparator   = "~"

	// EncodingCharacters is the literal content of MSH-2. A field holding it
	// is stored as is, because its characters are the delimiters themselves.
	EncodingCharacters = `^~\&`
)

// Fields maps the leaf positions of one segment to their values. Parent
// positions of a decomposed field or component are never present.
type Fields map[Path]string

// Get returns the value stored at path, if any.
func (f Fields) Get(path string) (string, bool) {
	p, ok := ParsePath(path)
	if !ok {
		return "", false
	}
	v, ok := f[p]
	return v, ok
}

// Strings renders the map with dot-delimited keys.
func (f Fields) Strings() map[string]string {
	out := make(map[string]string, len(f))
	for p, v := range f {
		out[p.String()] = v
	}
	return out
}

func (f Fields) rename(segmentType string) Fields {
	out := make(Fields, len(f))
	for p, v := range f {
		p.Segment = segmentType
		out[p] = v
	}
	return out
}

// Paths returns the keys of the map in path order.
func (f Fields) Paths() []Path {
	paths := make([]Path, 0, len(f))
	for p := range f {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Less(paths[j])
	})
	return paths
}

// Parse splits one raw segment line into its leaf values, keyed by paths
// of segmentType. Field 0, the segment type itself, is stored like every
// other field. Malformed or short lines never fail; positions they lack
// are simply absent.
func Parse(segmentType, line string) Fields {
	values := make(Fields)
	for a, field := range strings.Split(line, FieldSeparator) {
		if field == EncodingCharacters {
			values[NewPath(segmentType, a)] = field
			continue
		}
		components := strings.Split(field, ComponentSeparator)
		if len(components) == 1 {
			values[NewPath(segmentType, a)] = field
			continue
		}
		for b, component := range components {
			parseComponent(values, segmentType, a, b, component)
		}
	}
	return values
}

func parseComponent(values Fields, segmentType string, a, b int, component string) {
	subcomponents := strings.Split(component, SubcomponentSeparator)
	if len(subcomponents) > 1 {
		for c, sub := range subcomponents {
			repetitions := strings.Split(sub, RepetitionSeparator)
			if len(repetitions) == 1 {
				values[NewPath(segmentType, a, b, c)] = sub
				continue
			}
			for d, rep := range repetitions {
				values[NewPath(segmentType, a, b, c, d)] = rep
			}
		}
		return
	}
	repetitions := strings.Split(component, RepetitionSeparator)
	if len(repetitions) == 1 {
		values[NewPath(segmentType, a, b)] = component
		return
	}
	// The repetition index takes the subcomponent slot here.
	for c, rep := range repetitions {
		values[NewPath(segmentType, a, b, c)] = rep
	}
}
