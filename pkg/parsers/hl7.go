package parsers

import (
	"fmt"
	"strings"

	"github.com/oarkflow/hl7/pkg/hl7"
)

var _ Parser = (*HL7Parser)(nil)

// HL7ParserOption customizes an HL7Parser.
type HL7ParserOption func(*HL7Parser)

// WithEagerParse makes the parser build every segment's field map up front.
func WithEagerParse(enabled bool) HL7ParserOption {
	return func(p *HL7Parser) {
		p.eager = enabled
	}
}

// WithNewlineSegments controls whether a message using bare line feeds
// as segment terminators is accepted.
func WithNewlineSegments(enabled bool) HL7ParserOption {
	return func(p *HL7Parser) {
		p.newlineSegments = enabled
	}
}

// HL7Parser turns raw HL7 v2 text into path-addressable messages.
type HL7Parser struct {
	eager           bool
	newlineSegments bool
}

// NewHL7Parser creates a new HL7 parser
func NewHL7Parser(opts ...HL7ParserOption) *HL7Parser {
	p := &HL7Parser{newlineSegments: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the parser name
func (p *HL7Parser) Name() string {
	return "HL7"
}

// Detect checks if the data is a valid HL7 message
func (p *HL7Parser) Detect(data []byte) bool {
	message := strings.TrimSpace(string(UnwrapMLLP(data)))
	return strings.HasPrefix(message, hl7.HeaderType)
}

// Parse implements Parser and returns a *hl7.Message.
func (p *HL7Parser) Parse(data []byte) (any, error) {
	return p.ParseString(string(data))
}

// ParseString parses one message. MLLP framing is removed first.
func (p *HL7Parser) ParseString(message string) (*hl7.Message, error) {
	message = string(UnwrapMLLP([]byte(message)))
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if p.newlineSegments && !strings.Contains(message, hl7.SegmentTerminator) {
		message = strings.ReplaceAll(message, "\n", hl7.SegmentTerminator)
	}
	var opts []hl7.Option
	if p.eager {
		opts = append(opts, hl7.WithEagerParse())
	}
	return hl7.NewMessage(message, opts...), nil
}
