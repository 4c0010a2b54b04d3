package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogWritesHexDump(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	l.Log(TX, 0x02, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	out := buf.String()
	if !strings.Contains(out, "DE AD BE EF") {
		t.Errorf("missing hex dump: %q", out)
	}
	if !strings.Contains(out, "TX") || !strings.Contains(out, "ep=0x02") {
		t.Errorf("missing label/endpoint: %q", out)
	}
}

func TestLogNilSinkIsNoop(t *testing.T) {
	l := New(nil)
	l.Log(RX, 0x81, []byte{1, 2, 3})
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Log(CTRL, 0, nil)
	l.LogError(CTRL, 0, nil)
}

func TestLogErrorWritesLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.LogError(RX, 0x81, bytes.ErrTooLarge)
	if !strings.Contains(buf.String(), "error=") {
		t.Errorf("missing error field: %q", buf.String())
	}
}
