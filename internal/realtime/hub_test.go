package realtime

import (
	"testing"
	"time"
)

func recvOrTimeout(t *testing.T, obs *Observer) []byte {
	t.Helper()
	select {
	case msg, ok := <-obs.Outbox():
		if !ok {
			t.Fatalf("outbox closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for delivery")
		return nil
	}
}

func TestHubBroadcastReachesAllObservers(t *testing.T) {
	hub := NewHub()
	a := hub.Join("exam:att-1", "obs-a")
	b := hub.Join("exam:att-1", "obs-b")

	hub.Broadcast("exam:att-1", []byte("hello"))

	if got := string(recvOrTimeout(t, a)); got != "hello" {
		t.Fatalf("observer a got %q", got)
	}
	if got := string(recvOrTimeout(t, b)); got != "hello" {
		t.Fatalf("observer b got %q", got)
	}
}

func TestHubBroadcastEmptyChannelIsNoop(t *testing.T) {
	hub := NewHub()
	// Must not panic or create state.
	hub.Broadcast("exam:nobody", []byte("x"))
	if n := hub.ObserverCount("exam:nobody"); n != 0 {
		t.Fatalf("expected 0 observers, got %d", n)
	}
}

func TestHubDuplicateJoinSingleDelivery(t *testing.T) {
	hub := NewHub()
	hub.Join("exam:att-1", "obs-a")
	second := hub.Join("exam:att-1", "obs-a")

	if n := hub.ObserverCount("exam:att-1"); n != 1 {
		t.Fatalf("expected 1 observer after duplicate join, got %d", n)
	}

	hub.Broadcast("exam:att-1", []byte("once"))
	if got := string(recvOrTimeout(t, second)); got != "once" {
		t.Fatalf("got %q", got)
	}
	select {
	case extra := <-second.Outbox():
		t.Fatalf("unexpected extra delivery %q", extra)
	default:
	}
}

func TestHubLeaveUnknownObserverIsNoop(t *testing.T) {
	hub := NewHub()
	obs := hub.Join("exam:att-1", "obs-a")
	hub.Leave(obs)
	// Second leave must be harmless.
	hub.Leave(obs)

	if n := hub.ObserverCount("exam:att-1"); n != 0 {
		t.Fatalf("expected empty channel, got %d observers", n)
	}
}

func TestHubPrunesStuckObserver(t *testing.T) {
	hub := NewHub()
	stuck := hub.Join("exam:att-1", "stuck")
	healthy := hub.Join("exam:att-1", "healthy")

	// Keep the healthy observer drained while the stuck one never reads.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range healthy.Outbox() {
		}
	}()

	for i := 0; i <= sendBuffer; i++ {
		hub.Broadcast("exam:att-1", []byte("fill"))
	}

	if !stuck.closed {
		t.Fatalf("expected stuck observer outbox closed")
	}
	if n := hub.ObserverCount("exam:att-1"); n > 1 {
		t.Fatalf("expected stuck observer pruned, got %d observers", n)
	}

	hub.Leave(healthy)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("healthy observer outbox never closed")
	}
}

func TestHubUnicastMissingObserverSwallowed(t *testing.T) {
	hub := NewHub()
	hub.Join("exam:att-1", "obs-a")
	// No such observer; must not panic.
	hub.Unicast("exam:att-1", "ghost", []byte("x"))
	hub.Unicast("exam:missing", "ghost", []byte("x"))
}

func TestHubChannelRemovedWhenEmpty(t *testing.T) {
	hub := NewHub()
	obs := hub.Join("teacher_feed:exam-1", "t-1")
	hub.Leave(obs)

	for _, name := range hub.Channels() {
		if name == "teacher_feed:exam-1" {
			t.Fatalf("empty channel still listed")
		}
	}
}
