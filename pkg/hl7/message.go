package hl7

import (
	"errors"
	"runtime"
	"strings"
)

// HeaderType is the type of the message header segment.
const HeaderType = "MSH"

// SegmentTerminator separates segments in a raw message.
const SegmentTerminator = "\r"

// ErrNoHeader is returned when an operation needs the header segment and
// the message has none.
var ErrNoHeader = errors.New("no header segment present")

// LineSeparator terminates each segment written by Message.Text.
var LineSeparator = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// Option customizes message construction.
type Option func(*Message)

// WithEagerParse parses every segment while the message is built instead
// of on first lookup.
func WithEagerParse() Option {
	return func(m *Message) {
		m.eager = true
	}
}

// Message is an ordered list of segments plus a reference to the header.
// It is read-only once built.
type Message struct {
	segments []*Segment
	header   *Segment
	eager    bool
}

// NewMessage builds a message from raw text. Segments are split on carriage
// returns and every byte outside printable ASCII is dropped from each line.
// The type of each segment is the text before its first field separator.
func NewMessage(raw string, opts ...Option) *Message {
	m := &Message{}
	for _, opt := range opts {
		opt(m)
	}
	lines := strings.Split(raw, SegmentTerminator)
	m.segments = make([]*Segment, 0, len(lines))
	for i, line := range lines {
		data := printable(line)
		segment := NewSegment(i, data)
		name, _, _ := strings.Cut(data, FieldSeparator)
		segment.SetType(name)
		if m.header == nil && name == HeaderType {
			m.header = segment
		}
		m.segments = append(m.segments, segment)
	}
	m.prime()
	return m
}

// FromSegments builds a message from segments assembled elsewhere. When
// header is nil the first MSH segment is used.
func FromSegments(segments []*Segment, header *Segment, opts ...Option) *Message {
	m := &Message{segments: segments, header: header}
	for _, opt := range opts {
		opt(m)
	}
	if m.header == nil {
		for _, segment := range segments {
			if segment.Type() == HeaderType {
				m.header = segment
				break
			}
		}
	}
	m.prime()
	return m
}

func (m *Message) prime() {
	if !m.eager {
		return
	}
	for _, segment := range m.segments {
		segment.parsed()
	}
}

func printable(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x20 && s[i] <= 0x7e {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Header returns the header segment, or nil when there is none.
func (m *Message) Header() *Segment {
	return m.header
}

// Segments returns the segments in line order.
func (m *Message) Segments() []*Segment {
	return m.segments
}

// Len returns the number of segments.
func (m *Message) Len() int {
	return len(m.segments)
}

// Type returns the message type from MSH-8, e.g. "ADT^A01". The raw field
// is used so that components stay joined; when the field repeats only the
// first repetition is returned.
func (m *Message) Type() string {
	if m.header == nil {
		return ""
	}
	fields := strings.SplitN(m.header.Raw(), FieldSeparator, 10)
	if len(fields) <= 8 {
		return ""
	}
	event, _, _ := strings.Cut(fields[8], RepetitionSeparator)
	return event
}

// ControlID returns MSH-9, the message control id.
func (m *Message) ControlID() string {
	if m.header == nil {
		return ""
	}
	return m.header.Value(HeaderType + ".9")
}

// Value returns the value at path from segments of the path's type. Every
// matching segment is consulted in order and the last one wins, even when
// its value is empty. FirstValue is the first-match variant.
func (m *Message) Value(path string) string {
	typ := SegmentType(path)
	var value string
	for _, segment := range m.segments {
		if segment.Type() == typ {
			value = segment.Value(path)
		}
	}
	return value
}

// FirstValue returns the value at path from the first segment of the
// path's type.
func (m *Message) FirstValue(path string) string {
	typ := SegmentType(path)
	for _, segment := range m.segments {
		if segment.Type() == typ {
			return segment.Value(path)
		}
	}
	return ""
}

// ValueAt returns the value at path from the first segment whose index
// equals index. A negative index means no index was given and defers to
// Value.
func (m *Message) ValueAt(path string, index int) string {
	if index < 0 {
		return m.Value(path)
	}
	for _, segment := range m.segments {
		if segment.Index() == index {
			return segment.Value(path)
		}
	}
	return ""
}

// SegmentsByType returns every segment of the given type, in order.
func (m *Message) SegmentsByType(typ string) []*Segment {
	var out []*Segment
	for _, segment := range m.segments {
		if segment.Type() == typ {
			out = append(out, segment)
		}
	}
	return out
}

// SegmentsByIndex returns every segment carrying the given index.
func (m *Message) SegmentsByIndex(index int) []*Segment {
	var out []*Segment
	for _, segment := range m.segments {
		if segment.Index() == index {
			out = append(out, segment)
		}
	}
	return out
}

// GroupedSegments partitions the message into blocks that start at each
// segment of the given type. The first group holds whatever precedes the
// first occurrence and may be empty. The block still open when the scan
// ends is not returned, so the last occurrence and its followers are
// missing from the result. Groups returns every block.
func (m *Message) GroupedSegments(typ string) [][]*Segment {
	groups := [][]*Segment{}
	current := []*Segment{}
	for _, segment := range m.segments {
		if segment.Type() == typ {
			groups = append(groups, current)
			current = []*Segment{}
		}
		current = append(current, segment)
	}
	return groups
}

// Groups returns one block per segment of the given type, each running up
// to the next occurrence or the end of the message. Segments before the
// first occurrence belong to no block.
func (m *Message) Groups(typ string) [][]*Segment {
	var groups [][]*Segment
	for _, segment := range m.segments {
		if segment.Type() == typ {
			groups = append(groups, []*Segment{segment})
			continue
		}
		if len(groups) > 0 {
			last := len(groups) - 1
			groups[last] = append(groups[last], segment)
		}
	}
	return groups
}

// Text rebuilds the message with one segment per line. Without
// includeHeader every segment is written in line order, MSH included. With
// includeHeader the header is moved to the front and written only once.
func (m *Message) Text(includeHeader bool) (string, error) {
	if m.header == nil {
		return "", ErrNoHeader
	}
	var b strings.Builder
	if includeHeader {
		b.WriteString(m.header.Raw())
		b.WriteString(LineSeparator)
	}
	for _, segment := range m.segments {
		if includeHeader && segment == m.header {
			continue
		}
		b.WriteString(segment.Raw())
		b.WriteString(LineSeparator)
	}
	return b.String(), nil
}
