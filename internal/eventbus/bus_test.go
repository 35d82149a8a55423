package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewWithConfig(2, 16)
	defer b.Close(context.Background())

	var mu sync.Mutex
	got := make(map[string]int)
	for _, name := range []string{"a", "b"} {
		name := name
		b.Subscribe(func(ev Event) {
			mu.Lock()
			got[name]++
			mu.Unlock()
		})
	}

	for i := 0; i < 5; i++ {
		b.Publish(Event{Time: time.Now(), Type: EventUpdate, ResourceType: "lights", ResourceID: "1"})
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := got["a"] == 5 && got["b"] == 5
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			mu.Lock()
			t.Fatalf("delivery incomplete: %v", got)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	// No workers: nothing drains the queue, so publishes past the queue size
	// must drop instead of blocking.
	b := NewWithConfig(0, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: EventUpdate, ResourceType: "lights", ResourceID: "1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}

func TestSubscriberPanicDoesNotKillWorker(t *testing.T) {
	b := NewWithConfig(1, 16)
	defer b.Close(context.Background())

	b.Subscribe(func(ev Event) {
		if ev.ResourceID == "boom" {
			panic("subscriber bug")
		}
	})

	delivered := make(chan struct{}, 1)
	b.Subscribe(func(ev Event) {
		if ev.ResourceID == "ok" {
			delivered <- struct{}{}
		}
	})

	b.Publish(Event{Type: EventUpdate, ResourceType: "lights", ResourceID: "boom"})
	b.Publish(Event{Type: EventUpdate, ResourceType: "lights", ResourceID: "ok"})

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after subscriber panic")
	}
}

func TestCloseDrainsAndStops(t *testing.T) {
	b := NewWithConfig(2, 16)

	var mu sync.Mutex
	count := 0
	b.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 8; i++ {
		b.Publish(Event{Type: EventAdd, ResourceType: "lights", ResourceID: "1"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b.Close(ctx)

	mu.Lock()
	defer mu.Unlock()
	if count != 8 {
		t.Errorf("delivered %d events before close, want 8", count)
	}
}
