package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, WARN)

	l.Info("hidden")
	l.Warn("shown", F("key", "PROJ-1"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO entry written at WARN level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "shown | key=PROJ-1") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "logger_test.go:") {
		t.Errorf("caller not reported: %q", out)
	}
}

func TestWithFieldsKeepsParentUntouched(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriter(&buf, DEBUG)
	child := parent.WithFields(F("run", "r1"))

	child.Debug("child", F("stage", "users"))
	parent.Debug("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[0], "child | run=r1 stage=users") {
		t.Errorf("child line = %q", lines[0])
	}
	if strings.Contains(lines[1], "run=") {
		t.Errorf("parent inherited child fields: %q", lines[1])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": DEBUG, "INFO": INFO, "warning": WARN, "ERROR": ERROR, "bogus": INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pmsync.log")
	l, err := New(Config{Level: INFO, FilePath: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("written to file")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file content = %q", data)
	}
}
