package parsers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/oarkflow/json"

	"github.com/oarkflow/hl7/pkg/hl7"
)

// HL7Document is a flattened rendering of a parsed message.
type HL7Document struct {
	MessageType string            `json:"message_type"`
	ControlID   string            `json:"control_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Segments    []SegmentDocument `json:"segments"`
}

// SegmentDocument lists the leaf values of one segment keyed by path.
type SegmentDocument struct {
	Index  int               `json:"index"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields"`
}

// NewDocument flattens msg into a document.
func NewDocument(msg *hl7.Message) *HL7Document {
	doc := &HL7Document{
		MessageType: msg.Type(),
		ControlID:   msg.ControlID(),
		Segments:    make([]SegmentDocument, 0, msg.Len()),
	}
	if header := msg.Header(); header != nil {
		if ts, err := parseHL7Timestamp(header.Value(hl7.HeaderType + ".6")); err == nil {
			doc.Timestamp = ts
		}
	}
	for _, segment := range msg.Segments() {
		doc.Segments = append(doc.Segments, SegmentDocument{
			Index:  segment.Index(),
			Type:   segment.Type(),
			Fields: segment.Fields().Strings(),
		})
	}
	return doc
}

// ParseDocument parses the HL7 message and flattens it into a document.
func (p *HL7Parser) ParseDocument(message string) (*HL7Document, error) {
	msg, err := p.ParseString(message)
	if err != nil {
		return nil, err
	}
	return NewDocument(msg), nil
}

// ToJSON renders an HL7 message directly to JSON bytes.
func (p *HL7Parser) ToJSON(message string) ([]byte, error) {
	doc, err := p.ParseDocument(message)
	if err != nil {
		return nil, err
	}
	return doc.JSON()
}

// ToXML renders an HL7 message to XML bytes.
func (p *HL7Parser) ToXML(message string) ([]byte, error) {
	doc, err := p.ParseDocument(message)
	if err != nil {
		return nil, err
	}
	return doc.XML()
}

// JSON renders the document as indented JSON.
func (d *HL7Document) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal HL7 JSON: %w", err)
	}
	return data, nil
}

// XML renders the document with one element per segment and one child
// element per leaf path, e.g. <PID><PID.3.0>123</PID.3.0></PID>.
func (d *HL7Document) XML() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(buf)
	encoder.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: "HL7Message"}}
	if err := encoder.EncodeToken(root); err != nil {
		return nil, fmt.Errorf("failed to build HL7 XML: %w", err)
	}
	for _, segment := range d.Segments {
		if err := encodeHL7Segment(encoder, segment); err != nil {
			return nil, fmt.Errorf("failed to build HL7 XML: %w", err)
		}
	}
	if err := encoder.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := encoder.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeHL7Segment(encoder *xml.Encoder, segment SegmentDocument) error {
	start := xml.StartElement{Name: xml.Name{Local: sanitizeXMLName(segment.Type)}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	paths := make([]hl7.Path, 0, len(segment.Fields))
	for key := range segment.Fields {
		if p, ok := hl7.ParsePath(key); ok {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Less(paths[j])
	})
	for _, p := range paths {
		key := p.String()
		if err := encodeSimpleElement(encoder, key, segment.Fields[key]); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}

func encodeSimpleElement(encoder *xml.Encoder, name, value string) error {
	start := xml.StartElement{Name: xml.Name{Local: sanitizeXMLName(name)}}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	if err := encoder.EncodeToken(xml.CharData([]byte(value))); err != nil {
		return err
	}
	return encoder.EncodeToken(start.End())
}

func sanitizeXMLName(name string) string {
	if name == "" {
		return "Segment"
	}
	var builder strings.Builder
	runes := []rune(name)
	if !isXMLNameStart(runes[0]) {
		builder.WriteRune('_')
	}
	for _, r := range runes {
		if isXMLNameChar(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune('_')
		}
	}
	return builder.String()
}

func isXMLNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isXMLNameChar(r rune) bool {
	return isXMLNameStart(r) || unicode.IsDigit(r) || r == '-' || r == '.'
}

func parseHL7Timestamp(value string) (time.Time, error) {
	formats := []string{
		"20060102150405Z07:00",
		"20060102150405-0700",
		"20060102150405",
		"200601021504",
		"20060102",
	}
	for _, layout := range formats {
		if len(value) < len(layout) {
			continue
		}
		parsed, err := time.Parse(layout, value[:len(layout)])
		if err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported HL7 timestamp: %s", value)
}
