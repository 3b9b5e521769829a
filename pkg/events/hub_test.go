package events

import (
	"testing"
)

func TestHubPublish(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(ChargeComplete, ChargeEvent{Elapsed: "00:42:10", Capacity: 1800, Ts: 1})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		if ev.Name != ChargeComplete {
			t.Fatalf("Name = %q", ev.Name)
		}
		p, err := DecodeAs[ChargeEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs() error = %v", err)
		}
		if p.Elapsed != "00:42:10" || p.Capacity != 1800 {
			t.Errorf("payload = %+v", p)
		}
	}

	h.Unsubscribe(a)
	if _, ok := <-a; ok {
		t.Errorf("channel should be closed after Unsubscribe")
	}
	if h.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", h.Subscribers())
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(Telemetry, i)
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	h.Close()

	if _, ok := <-ch; ok {
		t.Errorf("channel should be closed")
	}
	late := h.Subscribe()
	if _, ok := <-late; ok {
		t.Errorf("subscribing to a closed hub should return a closed channel")
	}
	var nilHub *Hub
	nilHub.Publish(Telemetry, nil)
}
