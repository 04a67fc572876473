// Package events is the in-process publish/subscribe channel that carries
// ledger, rule and liability notifications between services and to external
// observers.
//
// Delivery is synchronous and FIFO. An event published from inside a handler
// is queued and delivered only after every subscriber has seen the current
// event, so all subscribers observe the same total order.
package events

import (
	"sync"

	"cloud.google.com/go/civil"

	"github.com/tallyfi/tally/internal/model"
)

// Type identifies the kind of event.
type Type string

const (
	LedgerChanged     Type = "ledger-changed"
	RuleMaterialized  Type = "recurring-rule-materialized"
	LiabilityLinked   Type = "liability-linked"
	LiabilityUnlinked Type = "liability-unlinked"
	ForceRefreshAll   Type = "force-refresh-all"
)

// Event is one notification. Which fields are set depends on Type:
//
//	LedgerChanged      Previous and/or Current
//	RuleMaterialized   RuleID, Date, Current
//	LiabilityLinked    LiabilityID, RuleID
//	LiabilityUnlinked  LiabilityID, RuleID
type Event struct {
	Type        Type
	Seq         uint64 // assigned by the bus, strictly increasing
	Previous    *model.Transaction
	Current     *model.Transaction
	RuleID      string
	Date        civil.Date
	LiabilityID string
}

// LedgerChange builds a ledger-changed event. prev is nil for an add, cur is
// nil for a remove.
func LedgerChange(prev, cur *model.Transaction) Event {
	return Event{Type: LedgerChanged, Previous: prev, Current: cur}
}

// Handler receives events.
type Handler func(Event)

// Publisher is what services need to emit events.
type Publisher interface {
	Publish(Event)
}

type subscription struct {
	id    int
	types map[Type]bool
	fn    Handler
}

func (s subscription) wants(t Type) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus is a synchronous, run-to-completion event bus.
type Bus struct {
	mu       sync.Mutex
	subs     []subscription
	nextID   int
	queue    []Event
	draining bool
	seq      uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for the given types (all types when none are
// given). Subscribers are called in registration order. The returned
// function removes the subscription.
func (b *Bus) Subscribe(fn Handler, types ...Type) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, fn: fn}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish enqueues e and, unless a delivery is already in progress, delivers
// queued events until the queue is empty.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	b.seq++
	e.Seq = b.seq
	b.queue = append(b.queue, e)
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.draining = false
		b.mu.Unlock()
	}()

	for {
		next, subs, ok := b.pop()
		if !ok {
			return
		}
		for _, s := range subs {
			if s.wants(next.Type) {
				s.fn(next)
			}
		}
	}
}

func (b *Bus) pop() (Event, []subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		b.draining = false
		return Event{}, nil, false
	}
	e := b.queue[0]
	b.queue = b.queue[1:]
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	return e, subs, true
}

// Recorder collects events, for observers that want a log rather than a
// callback.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Attach subscribes the recorder to bus for the given types.
func (r *Recorder) Attach(bus *Bus, types ...Type) func() {
	return bus.Subscribe(r.record, types...)
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ Publisher = (*Bus)(nil)
