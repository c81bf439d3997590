package broker

import (
	"testing"

	"brokerly.dev/event"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(4)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	e := &event.E{Content: "hi"}
	b.Publish(e)

	got1 := <-ch1
	got2 := <-ch2
	if got1 != e || got2 != e {
		t.Fatalf("expected both subscribers to receive the same event")
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(4)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after Unsubscribe")
	}
	if b.Len() != 0 {
		t.Fatalf("expected 0 subscribers after Unsubscribe, got %d", b.Len())
	}
}

func TestBusDropsLaggingSubscriberRatherThanBlocking(t *testing.T) {
	b := NewBus(1)
	_, ch := b.Subscribe()

	b.Publish(&event.E{Content: "a"})
	b.Publish(&event.E{Content: "b"}) // backlog full: this subscriber lags

	<-ch // drains "a"
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after lagging, got a value")
	}
	if b.Len() != 0 {
		t.Fatalf("expected the lagging subscriber to be dropped, got %d subs", b.Len())
	}
}

func TestBusNeverBlocksPublisher(t *testing.T) {
	b := NewBus(1)
	b.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(&event.E{Content: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done
}
