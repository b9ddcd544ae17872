// Package eventbus implements the typed, predicate-filtered event bus
// described by spec.md §4.9, the path every subsystem (jobs, the sync core,
// pairing) uses to notify a UI or another in-process subscriber of a
// change without coupling to it directly.
package eventbus

import (
	"encoding/json"
	"sync"

	"github.com/sd-io/sdcore/pkg/state"
)

// Kind names the category of an Event, e.g. "job.progress",
// "sync.shared_change", "resource.changed_batch".
type Kind string

// Event is the typed envelope every emission carries: a Kind for
// predicate filtering plus an arbitrary payload the subscriber type-asserts
// based on that Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// Predicate decides whether a subscription is interested in an event. A nil
// Predicate matches everything.
type Predicate func(Event) bool

// Subscription is a single subscriber's view of the bus: a channel of
// matching events plus a lag tracker a subscriber can poll to find out if
// it has fallen behind and missed events.
type Subscription struct {
	id        uint64
	bus       *Bus
	predicate Predicate
	events    chan Event
	lag       *state.Tracker
}

// Events returns the channel on which matching events are delivered. It is
// never closed except by Unsubscribe.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Lagged returns the state.Tracker that's notified every time an event
// matching this subscription was dropped because its buffer was full,
// mirroring mutagen's state.Tracker index-change idiom: a subscriber calls
// Lagged().WaitForChange(ctx, lastIndex) to learn, without polling, that it
// has missed at least one event and should resynchronize from source of
// truth rather than trust its event stream alone.
func (s *Subscription) Lagged() *state.Tracker {
	return s.lag
}

// Unsubscribe removes the subscription from the bus and closes its events
// channel.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s)
}

// Bus is a non-blocking, in-process event bus. Emit never blocks on a slow
// subscriber: if a subscription's buffer is full, the event is dropped for
// that subscription and its lag tracker is notified, rather than stalling
// every other subscriber (or the emitting goroutine) on one laggard.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscription matching events for which
// predicate returns true (or all events, if predicate is nil), buffered up
// to capacity before events start being dropped for it.
func (b *Bus) Subscribe(predicate Predicate, capacity int) *Subscription {
	if capacity <= 0 {
		capacity = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		bus:       b,
		predicate: predicate,
		events:    make(chan Event, capacity),
		lag:       state.NewTracker(),
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if ok {
		close(sub.events)
		sub.lag.Terminate()
	}
}

// Emit delivers evt to every matching subscription without blocking.
func (b *Bus) Emit(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.predicate != nil && !sub.predicate(evt) {
			continue
		}
		select {
		case sub.events <- evt:
		default:
			sub.lag.NotifyOfChange()
		}
	}
}

// ResourceChangedBatch carries a raw JSON array of changed resources for a
// single batched notification, per spec.md §4.9.
type ResourceChangedBatch struct {
	Resource string
	Changes  json.RawMessage
}

// KindJobProgress, KindSyncSharedChange, KindSyncDeviceOwnedChange, and
// KindResourceChangedBatch are the event kinds this module's other
// packages emit; they live here (rather than in those packages) so a
// subscriber can filter on them without importing pkg/job or
// pkg/syncengine itself.
const (
	KindJobProgress           Kind = "job.progress"
	KindJobStatusChanged      Kind = "job.status_changed"
	KindSyncSharedChange      Kind = "sync.shared_change"
	KindSyncDeviceOwnedChange Kind = "sync.device_owned_change"
	KindResourceChangedBatch  Kind = "resource.changed_batch"
	KindPairingStateChanged   Kind = "pairing.state_changed"
)
