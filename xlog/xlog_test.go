package xlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDomainStamp(t *testing.T) {
	var buf bytes.Buffer
	l := NewDomain("lrpc.test", &buf)
	l.Info().Str("ch", "a").Msg("hello")

	var ev map[string]any
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("%v: %s", err, buf.String())
	}
	if ev[DomainFieldName] != "lrpc.test" || ev["msg"] != "hello" || ev["ch"] != "a" {
		t.Fatalf("unexpected event %v", ev)
	}
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	l := NewDomain("lrpc.lines", &buf)
	w := ToLineWriter(l, LevelInfo)
	w.Write([]byte("first\nsec"))
	w.Write([]byte("ond\n"))
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected two events, got %d: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"second"`) {
		t.Fatalf("split line was not joined: %s", buf.String())
	}
}

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	w, err := FileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	l := NewDomain("lrpc.file", w)
	l.Warn().Msg("to disk")
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "to disk") {
		t.Fatalf("log file missing event (%v): %s", err, data)
	}
}

func TestConsoleGutter(t *testing.T) {
	var buf bytes.Buffer
	l := NewDomain("lrpc.channel", console(&buf, false))
	l.Warn().
		Str(SideFieldName, "acceptor").
		Str(IDFieldName, "8").
		Str(HeadFieldName, "7").
		Str(TargetFieldName, "s:inc").
		Str("extra", "kept").
		Msg("invocation failed")
	line := buf.String()
	for _, want := range []string{"│ lrpc.channel", "│ acceptor #8^7 s:inc │", "invocation failed", "extra=kept"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	for _, gone := range []string{"side=", "id=", "head=", "target="} {
		if strings.Contains(line, gone) {
			t.Fatalf("%q listed as a field in %q", gone, line)
		}
	}

	buf.Reset()
	l.Info().Str(SideFieldName, "dialer").Str(IDFieldName, "5").Str(HeadFieldName, "5").Msg("top")
	if line := buf.String(); !strings.Contains(line, "│ dialer #5 │") {
		t.Fatalf("top-level execution rendered as %q", line)
	}

	buf.Reset()
	l.Info().Msg("plain")
	if line := buf.String(); strings.Count(line, "│") != 2 || !strings.Contains(line, "plain") {
		t.Fatalf("event without execution rendered as %q", line)
	}
}
