package logx

import (
	"strings"
	"testing"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","message":"post failed","post_id":"p1","comp":"dispatch","time":"x"}` + "\n"))
	want := "[WARN] post failed\n- comp=dispatch\n- post_id=p1"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte("  plain text  "))
	if got != "plain text" {
		t.Fatalf("formatChatLine = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 50)
	if got := truncate(s, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("ignored", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop logger is not zero")
	}
}
