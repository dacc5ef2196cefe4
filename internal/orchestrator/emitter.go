package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// Emitter is the thread-safe event channel the orchestrator owns. Workers
// publish through it and never call observability code directly.
type Emitter struct {
	events       chan Event
	seq          atomic.Uint64
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit assigns the next sequence number and sends the event. If the channel
// is full it retries briefly, then drops the event and counts the drop.
func (e *Emitter) Emit(event Event) {
	event.Seq = e.seq.Add(1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the number of events dropped so far.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber side of the channel.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the event channel. Call only after all emitters are done.
func (e *Emitter) Close() {
	close(e.events)
}
