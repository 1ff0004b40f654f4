package parsers

import (
	"testing"

	"github.com/oarkflow/hl7/pkg/hl7"
)

func TestHL7ParserDetect(t *testing.T) {
	parser := NewHL7Parser()
	if !parser.Detect([]byte(sampleHL7Message)) {
		t.Fatalf("expected HL7 message to be detected")
	}
	if !parser.Detect(WrapMLLP([]byte(sampleHL7Message))) {
		t.Fatalf("expected framed HL7 message to be detected")
	}
	if parser.Detect([]byte(`{"resourceType":"Patient"}`)) {
		t.Fatalf("expected JSON not to be detected as HL7")
	}
}

func TestHL7ParserParse(t *testing.T) {
	parser := NewHL7Parser()
	parsed, err := parser.Parse(WrapMLLP([]byte(sampleHL7Message)))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	msg, ok := parsed.(*hl7.Message)
	if !ok {
		t.Fatalf("expected *hl7.Message, got %T", parsed)
	}
	if msg.Len() != 3 {
		t.Fatalf("expected 3 segments, got %d", msg.Len())
	}
	if got := msg.Value("PV1.12"); got != "" {
		t.Fatalf("expected empty PV1.12, got %q", got)
	}
	if got := msg.Value("PV1.16"); got != "1234567" {
		t.Fatalf("expected PV1.16, got %q", got)
	}
}

func TestHL7ParserNewlineSegments(t *testing.T) {
	raw := "MSH|^~\\&|APP\nPID|1||42"
	msg, err := NewHL7Parser().ParseString(raw)
	if err != nil {
		t.Fatalf("ParseString returned error: %v", err)
	}
	if got := msg.Value("PID.3"); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}

	strict, err := NewHL7Parser(WithNewlineSegments(false)).ParseString(raw)
	if err != nil {
		t.Fatalf("ParseString returned error: %v", err)
	}
	if strict.Len() != 1 {
		t.Fatalf("expected a single segment without newline splitting, got %d", strict.Len())
	}
}

func TestHL7ParserRejectsEmpty(t *testing.T) {
	if _, err := NewHL7Parser().ParseString("  "); err == nil {
		t.Fatalf("expected error for empty message")
	}
}

func TestMLLPRoundTrip(t *testing.T) {
	framed := WrapMLLP([]byte("MSH|x"))
	if framed[0] != StartBlock || framed[len(framed)-2] != EndBlock {
		t.Fatalf("unexpected framing: %v", framed)
	}
	if string(WrapMLLP(framed)) != string(framed) {
		t.Fatalf("expected framed message to be left alone")
	}
	if string(UnwrapMLLP(framed)) != "MSH|x" {
		t.Fatalf("unexpected unwrap result: %q", UnwrapMLLP(framed))
	}
}

func TestSelect(t *testing.T) {
	hl7Parser := NewHL7Parser()
	if p, ok := Select([]byte(sampleHL7Message), hl7Parser); !ok || p.Name() != "HL7" {
		t.Fatalf("expected HL7 parser to be selected")
	}
	if _, ok := Select([]byte("PID|1"), hl7Parser); ok {
		t.Fatalf("expected no parser for headerless data")
	}
}
