package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oarkflow/hl7/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
)

const input = "MSH|^~\\&|A|B|||||ADT^A01|1\nPID|1||111\n\n" +
	"MSH|^~\\&|C|D|||||ADT^A08|2\nPID|1||222\n"

func TestRunnerParsesEverySourceMessage(t *testing.T) {
	src := hl7adapter.NewFileSource("memory", hl7adapter.WithReader(strings.NewReader(input)))
	var ids []string
	summary, err := NewRunner(parsers.NewHL7Parser()).Run(context.Background(), src,
		func(_ context.Context, _ contracts.Envelope, msg *hl7.Message) error {
			ids = append(ids, msg.Value("PID.3"))
			return nil
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Received != 2 || summary.Parsed != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if strings.Join(ids, ",") != "111,222" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestRunnerHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	handler := func(_ context.Context, _ contracts.Envelope, _ *hl7.Message) error {
		return boom
	}

	src := hl7adapter.NewFileSource("memory", hl7adapter.WithReader(strings.NewReader(input)))
	summary, err := NewRunner(parsers.NewHL7Parser()).Run(context.Background(), src, handler)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 2 {
		t.Fatalf("expected 2 failures, got %#v", summary)
	}

	src = hl7adapter.NewFileSource("memory", hl7adapter.WithReader(strings.NewReader(input)))
	_, err = NewRunner(parsers.NewHL7Parser(), WithStopOnError()).Run(context.Background(), src, handler)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
