package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingEvents(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(func(e Event) bool { return e.Kind == KindJobProgress }, 4)
	defer sub.Unsubscribe()

	bus.Emit(Event{Kind: KindJobProgress, Payload: 42})
	bus.Emit(Event{Kind: KindPairingStateChanged, Payload: "paired"})

	select {
	case evt := <-sub.Events():
		if evt.Payload != 42 {
			t.Errorf("expected payload 42, got %v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the matching event")
	}

	select {
	case evt := <-sub.Events():
		t.Fatalf("expected no second event to match the predicate, got %+v", evt)
	default:
	}
}

func TestSubscribeWithNilPredicateReceivesEverything(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(nil, 4)
	defer sub.Unsubscribe()

	bus.Emit(Event{Kind: KindJobProgress})
	bus.Emit(Event{Kind: KindPairingStateChanged})

	for i := 0; i < 2; i++ {
		select {
		case <-sub.Events():
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestEmitDropsAndSignalsLagWhenSubscriberBufferIsFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(nil, 1)
	defer sub.Unsubscribe()

	initial, err := sub.Lagged().WaitForChange(context.Background(), 0)
	if err != nil {
		t.Fatalf("WaitForChange (initial read): %v", err)
	}

	bus.Emit(Event{Kind: KindJobProgress, Payload: 1})
	bus.Emit(Event{Kind: KindJobProgress, Payload: 2}) // dropped: buffer full

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	next, err := sub.Lagged().WaitForChange(ctx, initial)
	if err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
	if next == initial {
		t.Error("expected the lag tracker's index to change after a dropped event")
	}

	// Drain the one event that did make it through.
	select {
	case evt := <-sub.Events():
		if evt.Payload != 1 {
			t.Errorf("expected the first emitted event to survive, got %v", evt.Payload)
		}
	default:
		t.Fatal("expected the first event to have been buffered")
	}
}

func TestUnsubscribeClosesEventsChannel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(nil, 1)
	sub.Unsubscribe()

	if _, ok := <-sub.Events(); ok {
		t.Error("expected the events channel to be closed after Unsubscribe")
	}
}
