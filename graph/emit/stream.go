package emit

import (
	"context"
	"sync"
)

// DropPolicy selects how a Stream's per-subscriber buffer behaves once full.
type DropPolicy int

const (
	// DropOldest discards the subscriber's oldest undelivered event and
	// records the loss; the next event delivered to that subscriber carries a
	// StreamLagged in its Lagged field.
	DropOldest DropPolicy = iota

	// BlockProducer makes Publish block until the slow subscriber drains
	// space. Preserves completeness at the cost of engine throughput.
	BlockProducer
)

// StreamLagged is attached to the next StreamEvent delivered to a subscriber
// after DropOldest discarded events on its behalf, so the subscriber can
// detect gaps in its own sequence instead of silently missing events.
type StreamLagged struct {
	DroppedCount int
}

// Stream fans a single run's events out to any number of subscribers,
// enforcing each subscriber's own sequence-number ordering and backpressure
// policy independently — a slow subscriber on DropOldest never affects a fast
// one. Grounded on BufferedEmitter's mutex-guarded map style (buffered.go),
// generalized from one shared history into one bounded channel per
// subscriber.
type Stream struct {
	mu          sync.Mutex
	bufferSize  int
	dropPolicy  DropPolicy
	subscribers map[int]*subscription
	nextSubID   int
	nextSeq     uint64
	closed      bool
}

type subscription struct {
	events  chan StreamEvent
	dropped int
}

// StreamEvent pairs an Event with the monotonic per-stream sequence number
// Testable Property 7 requires ("per subscriber, event sequence numbers are
// strictly increasing").
type StreamEvent struct {
	Seq     uint64
	Event   Event
	Lagged  *StreamLagged
}

// NewStream creates a Stream with the given per-subscriber buffer size and
// drop policy. bufferSize <= 0 defaults to 256 (the spec's default stream_buffer).
func NewStream(bufferSize int, dropPolicy DropPolicy) *Stream {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Stream{
		bufferSize:  bufferSize,
		dropPolicy:  dropPolicy,
		subscribers: make(map[int]*subscription),
	}
}

// Subscribe attaches a new consumer, which sees only events published after
// this call (late subscribers never see history). Callers must range over
// the returned channel until it closes, or call Unsubscribe to stop early.
func (s *Stream) Subscribe() (<-chan StreamEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	sub := &subscription{events: make(chan StreamEvent, s.bufferSize)}
	s.subscribers[id] = sub

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			close(existing.events)
			delete(s.subscribers, id)
		}
	}
	return sub.events, unsubscribe
}

// Publish delivers event to every current subscriber per the stream's
// DropPolicy. Safe to call concurrently from the engine's main loop and
// parallel branch goroutines (§4.4's "producers are the engine task and
// branch tasks" model).
func (s *Stream) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	seq := s.nextSeq
	s.nextSeq++

	for _, sub := range s.subscribers {
		s.deliver(sub, StreamEvent{Seq: seq, Event: event})
	}
}

// deliver must be called with s.mu held.
func (s *Stream) deliver(sub *subscription, se StreamEvent) {
	select {
	case sub.events <- se:
		return
	default:
	}

	switch s.dropPolicy {
	case BlockProducer:
		// Block while still holding the stream lock: other subscribers wait
		// too, matching the spec's "producing engine blocks on that
		// subscriber" description (this one slow subscriber throttles the
		// whole stream, not just itself).
		sub.events <- se

	default: // DropOldest
		select {
		case <-sub.events:
			sub.dropped++
		default:
		}
		if sub.dropped > 0 {
			se.Lagged = &StreamLagged{DroppedCount: sub.dropped}
		}
		select {
		case sub.events <- se:
			sub.dropped = 0
		default:
			// Defensive: if the send still cannot proceed, count this
			// event as dropped too rather than block.
			sub.dropped++
		}
	}
}

// Emit implements Emitter so a Stream can be passed directly as an engine's
// emitter (graph.New's third argument) in addition to being fanned out to
// run_streaming-style subscribers.
func (s *Stream) Emit(event Event) { s.Publish(event) }

// EmitBatch implements Emitter by publishing each event in order.
func (s *Stream) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.Publish(e)
	}
	return nil
}

// Flush is a no-op: Stream has no internal buffering beyond the
// per-subscriber channels that Publish already delivers into synchronously.
func (s *Stream) Flush(ctx context.Context) error { return nil }

// Close unsubscribes every consumer, closing their channels.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subscribers {
		close(sub.events)
		delete(s.subscribers, id)
	}
}
