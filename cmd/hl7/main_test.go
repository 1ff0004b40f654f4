package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oarkflow/json"
)

const batch = "MSH|^~\\&|LAB|FAC|||20240101||ORU^R01|C1|P|2.5\r\n" +
	"PID|1||111^^^MRN\r\n" +
	"OBX|1|NM|GLU||5.4\r\n" +
	"OBX|2|NM|HGB||13.1\r\n" +
	"\r\n" +
	"MSH|^~\\&|LAB|FAC|||20240102||ORU^R01|C2|P|2.5\r\n" +
	"PID|1||222^^^MRN\r\n" +
	"OBX|1|NM|GLU||6.1\r\n"

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.hl7")
	if err := os.WriteFile(path, []byte(batch), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := newApp(&out).Run(append([]string{"hl7"}, args...)); err != nil {
		t.Fatalf("hl7 %v: %v", args, err)
	}
	return out.String()
}

func TestQueryCommand(t *testing.T) {
	path := writeBatch(t)
	out := run(t, "query", "-f", path, "-p", "PID.3.0", "-p", "OBX.3")
	want := "1\tPID.3.0\t111\n1\tOBX.3\tHGB\n2\tPID.3.0\t222\n2\tOBX.3\tGLU\n"
	if out != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out, want)
	}

	out = run(t, "query", "-f", path, "-p", "OBX.3", "--first")
	if !strings.HasPrefix(out, "1\tOBX.3\tGLU\n") {
		t.Fatalf("expected first-match value, got %q", out)
	}

	out = run(t, "query", "-f", path, "-p", "OBX.5", "--index", "3")
	if !strings.HasPrefix(out, "1\tOBX.5\t13.1\n") {
		t.Fatalf("expected indexed value, got %q", out)
	}
}

func TestGroupsCommand(t *testing.T) {
	path := writeBatch(t)
	out := run(t, "groups", "-f", path, "-t", "OBX")
	want := "1\t0\tMSH@0 PID@1\n1\t1\tOBX@2\n2\t0\tMSH@0 PID@1\n"
	if out != want {
		t.Fatalf("unexpected output:\n%q\nwant\n%q", out, want)
	}
	out = run(t, "groups", "-f", path, "-t", "OBX", "--corrected")
	want = "1\t0\tOBX@2\n1\t1\tOBX@3\n2\t0\tOBX@2\n"
	if out != want {
		t.Fatalf("unexpected corrected output:\n%q\nwant\n%q", out, want)
	}
}

func TestTextCommand(t *testing.T) {
	path := writeBatch(t)
	out := run(t, "text", "-f", path, "--line-order")
	if !strings.HasPrefix(out, "MSH|") || !strings.Contains(out, "\nPID|1||111^^^MRN") {
		t.Fatalf("unexpected text: %q", out)
	}
}

func TestExtractCommand(t *testing.T) {
	path := writeBatch(t)
	outFile := filepath.Join(t.TempDir(), "out.json")
	run(t, "extract", "-f", path, "-p", "PID.3.0", "-o", outFile, "--dedup")
	run(t, "extract", "-f", path, "-p", "PID.3.0", "-o", outFile, "--dedup")

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var records []map[string]string
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode: %v\n%s", err, data)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %#v", records)
	}
	if records[1]["PID.3.0"] != "222" || records[1]["control_id"] != "C2" {
		t.Fatalf("unexpected record: %#v", records[1])
	}
}

func TestSegmentsCommandWithPaths(t *testing.T) {
	path := writeBatch(t)
	out := run(t, "segments", "-f", path, "-t", "PID", "--paths")
	if !strings.Contains(out, "\t\tPID.3.3\tMRN\n") {
		t.Fatalf("expected leaf paths in output: %q", out)
	}
}
