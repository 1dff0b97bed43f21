package exec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStreamStopsAtMatch(t *testing.T) {
	if !CommandExists("sh") {
		t.Skip("sh not available")
	}
	r := NewRunner()

	var seen []string
	res := r.StreamWithTimeout(context.Background(), 5*time.Second, "sh",
		[]string{"-c", "echo starting; echo 'Ctrlr can be reached at phone.local.:51235'; sleep 10"},
		func(line string) bool {
			seen = append(seen, line)
			return strings.Contains(line, "reached at")
		})

	if !res.OK() {
		t.Fatalf("expected match, got %s err=%v", res, res.Error)
	}
	if res.Lines != 2 || len(seen) != 2 {
		t.Fatalf("read %d lines, want 2", res.Lines)
	}
	if res.Duration > 4*time.Second {
		t.Fatalf("process was not killed at match (ran %s)", res.Duration)
	}
}

func TestStreamTimeout(t *testing.T) {
	if !CommandExists("sleep") {
		t.Skip("sleep not available")
	}
	r := NewRunner()
	res := r.StreamWithTimeout(context.Background(), 100*time.Millisecond, "sleep", []string{"5"},
		func(string) bool { return true })

	if res.OK() {
		t.Fatal("expected no match")
	}
	if !res.TimedOut {
		t.Fatalf("expected timeout, got %v", res.Error)
	}
}

func TestStreamExitWithoutMatch(t *testing.T) {
	if !CommandExists("sh") {
		t.Skip("sh not available")
	}
	res := NewRunner().Stream(context.Background(), "sh", []string{"-c", "echo nothing here"},
		func(string) bool { return false })
	if res.Matched || res.Error == nil {
		t.Fatalf("expected failure without match, got %s", res)
	}
	if res.TimedOut {
		t.Fatal("clean exit must not be reported as timeout")
	}
}

func TestStreamMissingBinary(t *testing.T) {
	res := NewRunner().Stream(context.Background(), "ctrlr-definitely-missing-binary", nil,
		func(string) bool { return true })
	if res.Error == nil {
		t.Fatal("expected start error")
	}
}
