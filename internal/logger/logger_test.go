package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLogger_SuppressesDebugByDefault(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(&buf)
	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked: %q", out)
	}
	if !strings.Contains(out, "INFO:  shown 2") {
		t.Fatalf("missing info line: %q", out)
	}
}

func TestVerboseLogger_WithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewVerboseLogger(&buf).WithPrefix("[gather] ")
	l.Debugf("counter built")

	out := buf.String()
	if !strings.Contains(out, "[gather] DEBUG: counter built") {
		t.Fatalf("unexpected output: %q", out)
	}
}

type recorder struct{ lines []string }

func (r *recorder) Logf(format string, v ...interface{}) {
	r.lines = append(r.lines, format)
}

func TestLogfLogger_Prefix(t *testing.T) {
	r := &recorder{}
	l := NewLogfLogger(r).WithPrefix("q1: ")
	l.Warnf("skipped")
	if len(r.lines) != 1 || r.lines[0] != "WARN:  q1: skipped" {
		t.Fatalf("unexpected lines: %v", r.lines)
	}
}
