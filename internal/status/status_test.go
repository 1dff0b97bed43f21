package status

import (
	"strings"
	"testing"
	"time"
)

func TestStateNames(t *testing.T) {
	for s := Disconnected; s <= Failed; s++ {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Fatalf("ParseState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseState("bogus"); ok {
		t.Fatal("ParseState accepted an unknown name")
	}
}

func TestRollingLog(t *testing.T) {
	p := NewPublisher("discoverer", 3, nil)
	for i := 0; i < 5; i++ {
		p.Infof("event %d", i)
	}
	lines := p.Lines()
	if len(lines) != 3 {
		t.Fatalf("kept %d lines, want 3", len(lines))
	}
	if !strings.HasSuffix(lines[0], "[INFO] event 2") || !strings.HasSuffix(lines[2], "[INFO] event 4") {
		t.Fatalf("unexpected window: %v", lines)
	}
}

func TestUpdateAndSubscribe(t *testing.T) {
	p := NewPublisher("advertiser", 0, nil)
	events, cancel := p.Subscribe(4)
	defer cancel()

	before := p.Snapshot().Since
	time.Sleep(2 * time.Millisecond)
	p.Update(func(s *Snapshot) {
		s.State = Verified
		s.Connected = true
		s.Peer = "Ctrlr"
	})
	p.Warnf("conn: rejected stale %s", "10.0.0.9:1")

	ev := <-events
	if ev.Snapshot.State != Verified || !ev.Snapshot.Connected || ev.Entry != nil {
		t.Fatalf("unexpected state event %+v", ev)
	}
	if !ev.Snapshot.Since.After(before) {
		t.Fatal("Since not refreshed on state change")
	}
	ev = <-events
	if ev.Entry == nil || ev.Entry.Level != LevelWarn {
		t.Fatalf("unexpected log event %+v", ev)
	}
	if got := p.Snapshot().Peer; got != "Ctrlr" {
		t.Fatalf("Peer = %q", got)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	p := NewPublisher("discoverer", 0, nil)
	_, cancel := p.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Infof("line %d", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewPublisher("discoverer", 0, nil)
	ch, cancel := p.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	p.Infof("after unsubscribe")
}
