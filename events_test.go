package tiercache

import (
	"testing"
	"time"
)

func TestChannelEventDispatcher_DeliversToSubscriber(t *testing.T) {
	d := NewChannelEventDispatcher()
	ch := make(chan MutationEvent, 1)
	d.Subscribe(ch)

	d.Post(MutationEvent{Key: "k", Outcome: OutcomePut})

	select {
	case evt := <-ch:
		if evt.Key != "k" || evt.Outcome != OutcomePut {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event to be delivered")
	}
}

func TestChannelEventDispatcher_DropsWhenSubscriberFull(t *testing.T) {
	d := NewChannelEventDispatcher()
	ch := make(chan MutationEvent) // unbuffered, no reader
	d.Subscribe(ch)

	d.Post(MutationEvent{Key: "k", Outcome: OutcomePut})

	if got := d.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
}

func TestChannelEventDispatcher_FansOutToMultipleSubscribers(t *testing.T) {
	d := NewChannelEventDispatcher()
	ch1 := make(chan MutationEvent, 1)
	ch2 := make(chan MutationEvent, 1)
	d.Subscribe(ch1)
	d.Subscribe(ch2)

	d.Post(MutationEvent{Key: "k", Outcome: OutcomeMiss})

	for _, ch := range []chan MutationEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Key != "k" {
				t.Fatalf("unexpected event: %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("expected event delivered to every subscriber")
		}
	}
}

func TestNoopEventDispatcher_DiscardsEverything(t *testing.T) {
	var d EventDispatcher = noopEventDispatcher{}
	d.Post(MutationEvent{Key: "k", Outcome: OutcomePut})
}
