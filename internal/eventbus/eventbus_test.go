package eventbus

import (
	"testing"
	"time"

	"github.com/cloudorch/orchestrator/internal/model"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := New(Config{HeartbeatInterval: time.Hour})
	defer bus.Close()

	sub := bus.Subscribe(0)
	bus.Publish(model.Event{Type: "job.created", Payload: map[string]interface{}{"job_id": "j1"}})

	select {
	case ev := <-sub.Events():
		if ev.Type != "job.created" {
			t.Errorf("Type = %q, want job.created", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishAssignsIDAndTimestamp(t *testing.T) {
	bus := New(Config{HeartbeatInterval: time.Hour})
	defer bus.Close()

	ev := bus.Publish(model.Event{Type: "job.created"})
	if ev.EventID == "" {
		t.Error("expected a non-empty EventID to be assigned")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected a non-zero Timestamp to be assigned")
	}
}

func TestEventOrderPerSubscriber(t *testing.T) {
	bus := New(Config{HeartbeatInterval: time.Hour})
	defer bus.Close()

	sub := bus.Subscribe(0)
	for i := 0; i < 50; i++ {
		bus.Publish(model.Event{Type: "tick", Payload: map[string]interface{}{"seq": i}})
	}

	for i := 0; i < 50; i++ {
		select {
		case ev := <-sub.Events():
			if got := ev.Payload["seq"].(int); got != i {
				t.Fatalf("event %d out of order: got seq=%v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestSlowSubscriberDropsOldestAndReportsCount(t *testing.T) {
	bus := New(Config{SubscriberQueueCapacity: 4, HeartbeatInterval: time.Hour})
	defer bus.Close()

	sub := bus.Subscribe(0)
	for i := 0; i < 10; i++ {
		bus.Publish(model.Event{Type: "tick", Payload: map[string]interface{}{"seq": i}})
	}

	if sub.Dropped() != 6 {
		t.Errorf("Dropped() = %d, want 6 (10 published - 4 queue capacity)", sub.Dropped())
	}

	// The 4 retained events should be the 4 most recent: 6,7,8,9.
	want := 6
	for len(sub.Events()) > 0 {
		ev := <-sub.Events()
		if got := ev.Payload["seq"].(int); got != want {
			t.Errorf("retained event seq = %v, want %v", got, want)
		}
		want++
	}
}

func TestSlowSubscriberDoesNotAffectFastSubscriber(t *testing.T) {
	bus := New(Config{SubscriberQueueCapacity: 4, HeartbeatInterval: time.Hour})
	defer bus.Close()

	fast := bus.Subscribe(0)
	slow := bus.Subscribe(0)

	const total = 200
	for i := 0; i < total; i++ {
		bus.Publish(model.Event{Type: "tick", Payload: map[string]interface{}{"seq": i}})
		// fast drains as it goes; slow never reads.
		select {
		case <-fast.Events():
		case <-time.After(time.Second):
			t.Fatalf("fast subscriber stalled at event %d", i)
		}
	}

	if slow.Dropped() == 0 {
		t.Error("expected the slow subscriber to have dropped events")
	}
}

func TestSubscribeReplaysRecentEvents(t *testing.T) {
	bus := New(Config{HeartbeatInterval: time.Hour})
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(model.Event{Type: "tick", Payload: map[string]interface{}{"seq": i}})
	}

	sub := bus.Subscribe(3)
	for _, want := range []int{2, 3, 4} {
		select {
		case ev := <-sub.Events():
			if got := ev.Payload["seq"].(int); got != want {
				t.Errorf("replayed seq = %v, want %v", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for replayed event seq=%d", want)
		}
	}
}

func TestRecentReturnsOldestFirstCappedAtLimit(t *testing.T) {
	bus := New(Config{RingCapacity: 5, HeartbeatInterval: time.Hour})
	defer bus.Close()

	for i := 0; i < 8; i++ {
		bus.Publish(model.Event{Type: "tick", Payload: map[string]interface{}{"seq": i}})
	}

	recent := bus.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("len(Recent(3)) = %d, want 3", len(recent))
	}
	for i, want := range []int{5, 6, 7} {
		if got := recent[i].Payload["seq"].(int); got != want {
			t.Errorf("Recent()[%d] seq = %v, want %v", i, got, want)
		}
	}
}

func TestRecentNeverExceedsRingCapacity(t *testing.T) {
	bus := New(Config{RingCapacity: 4, HeartbeatInterval: time.Hour})
	defer bus.Close()

	for i := 0; i < 20; i++ {
		bus.Publish(model.Event{Type: "tick"})
	}

	if got := len(bus.Recent(100)); got != 4 {
		t.Errorf("len(Recent(100)) = %d, want 4 (the ring capacity)", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(Config{HeartbeatInterval: time.Hour})
	defer bus.Close()

	sub := bus.Subscribe(0)
	bus.Unsubscribe(sub)

	_, ok := <-sub.Events()
	if ok {
		t.Error("expected the subscription channel to be closed after Unsubscribe")
	}
}

func TestHeartbeatEmitted(t *testing.T) {
	bus := New(Config{HeartbeatInterval: 10 * time.Millisecond})
	defer bus.Close()

	sub := bus.Subscribe(0)
	select {
	case ev := <-sub.Events():
		if ev.Type != EventHeartbeat {
			t.Errorf("Type = %q, want %q", ev.Type, EventHeartbeat)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}
