package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 4)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	want := Event{
		Kind:       KindStarted,
		SessionID:  "s-1",
		Generation: "legacy",
		Width:      320,
		Height:     240,
		Timestamp:  time.Now(),
	}
	bus.Publish(want)

	select {
	case got := <-ch:
		if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(0)); diff != "" {
			t.Errorf("event mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 1)
	if err := bus.Subscribe("slow", ch); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Kind: KindStarted})
		bus.Publish(Event{Kind: KindStopped}) // buffer full, dropped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	if got := <-ch; got.Kind != KindStarted {
		t.Errorf("Expected started, got %s", got.Kind)
	}

	want := BusStats{
		TotalPublished: 2,
		TotalSent:      1,
		TotalDropped:   1,
		Subscribers:    map[string]SubscriberStats{"slow": {Sent: 1, Dropped: 1}},
	}
	if diff := cmp.Diff(want, bus.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	ch := make(chan Event, 1)
	if err := bus.Subscribe("a", ch); err != nil {
		t.Fatal(err)
	}
	if err := bus.Subscribe("a", ch); err != ErrSubscriberExists {
		t.Errorf("duplicate subscribe: got %v", err)
	}
	if err := bus.Subscribe("nil", nil); err != ErrNilChannel {
		t.Errorf("nil channel: got %v", err)
	}
	if err := bus.Unsubscribe("missing"); err != ErrSubscriberNotFound {
		t.Errorf("unknown unsubscribe: got %v", err)
	}
	if err := bus.Unsubscribe("a"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}

	bus.Close()
	bus.Close()

	if err := bus.Subscribe("b", ch); err != ErrBusClosed {
		t.Errorf("subscribe after close: got %v", err)
	}

	// Publish after close must not panic.
	bus.Publish(Event{Kind: KindStopped})
	if got := bus.Stats().TotalPublished; got != 0 {
		t.Errorf("publish after close counted: %d", got)
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 1000)
	if err := bus.Subscribe("sink", ch); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(Event{Kind: KindRestarting, Attempt: j})
			}
		}()
	}
	wg.Wait()

	stats := bus.Stats()
	if stats.TotalPublished != 500 {
		t.Errorf("Expected 500 published, got %d", stats.TotalPublished)
	}
	if stats.TotalSent+stats.TotalDropped != 500 {
		t.Errorf("sent+dropped = %d, want 500", stats.TotalSent+stats.TotalDropped)
	}
	t.Logf("✅ 500 concurrent publishes, %d delivered", stats.TotalSent)
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindStarted:    "started",
		KindStopped:    "stopped",
		KindRestarting: "restarting",
		Kind(42):       "kind(42)",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
