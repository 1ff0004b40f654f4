package store

import (
	"errors"
	"testing"

	"github.com/oarkflow/hl7/pkg/hl7"
)

func TestStorePutGetDelete(t *testing.T) {
	s, err := New(WithMaxMessages(100))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	msg := hl7.NewMessage("MSH|^~\\&|APP|FAC|REC|RFAC|20240101||ORU^R01|CTRL1|P|2.5\rPID|1||42")
	id, err := s.Put(msg, "test")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	entry, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Message != msg || entry.Origin != "test" || entry.ID != id {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if got := entry.Message.Value("PID.3"); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}

	s.Delete(id)
	if _, err := s.Get(id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreUnknownID(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
