package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oarkflow/json"
)

type row struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func readRows(t *testing.T, path string) []row {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("file is not a JSON array: %v\n%s", err, data)
	}
	return rows
}

func TestJSONAppenderAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path)
	if err != nil {
		t.Fatalf("NewJSONAppender: %v", err)
	}
	if err := ja.Append(row{ID: "1", Value: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ja.AppendBatch([]row{{ID: "2", Value: "b"}, {ID: "3", Value: "c"}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	if err := ja.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rows := readRows(t, path)
	if len(rows) != 3 || rows[2].Value != "c" {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	reopened, err := NewJSONAppender[row](path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Append(row{ID: "4"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if rows := readRows(t, path); len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
}

func TestJSONAppenderDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path, WithDedup[row]())
	if err != nil {
		t.Fatalf("NewJSONAppender: %v", err)
	}
	_ = ja.AppendBatch([]row{{ID: "1"}, {ID: "1"}, {ID: "2"}})
	_ = ja.Append(row{ID: "2"})
	_ = ja.Close()

	reopened, err := NewJSONAppender[row](path, WithDedup[row]())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Append(row{ID: "1"})
	_ = reopened.Close()

	if rows := readRows(t, path); len(rows) != 2 {
		t.Fatalf("expected 2 unique rows, got %#v", rows)
	}
}

func TestJSONAppenderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewJSONAppender[row](path); err == nil {
		t.Fatalf("expected error for invalid file")
	}
}

func TestJSONAppenderNormalizesExistingArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compact.json")
	if err := os.WriteFile(path, []byte(`[{"id":"1","value":"a"}]`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ja, err := NewJSONAppender[row](path, WithDedup[row]())
	if err != nil {
		t.Fatalf("NewJSONAppender: %v", err)
	}
	defer ja.Close()
	if err := ja.AppendBatch([]row{{ID: "1", Value: "a"}, {ID: "2", Value: "b"}}); err != nil {
		t.Fatalf("AppendBatch: %v", err)
	}
	rows := readRows(t, path)
	if len(rows) != 2 || rows[0].ID != "1" || rows[1].ID != "2" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestJSONAppenderRejectsForeignTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	ja, err := NewJSONAppender[row](path)
	if err != nil {
		t.Fatalf("NewJSONAppender: %v", err)
	}
	defer ja.Close()
	if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ja.Append(row{ID: "1"}); err == nil {
		t.Fatalf("expected error for a file rewritten behind the appender")
	}
}
