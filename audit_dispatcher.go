package fortress

import (
	"sync"
	"sync/atomic"
)

// auditDispatcher decouples audit delivery from request latency. Events are
// queued on a buffered channel and drained by a single goroutine; when the
// buffer is full and dropping is allowed, events are counted and discarded
// rather than stalling the hot path.
type auditDispatcher struct {
	sink    AuditSink
	events  chan AuditEvent
	drop    bool
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

func newAuditDispatcher(sink AuditSink, bufferSize int, dropIfFull bool) *auditDispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	d := &auditDispatcher{
		sink:   sink,
		events: make(chan AuditEvent, bufferSize),
		drop:   dropIfFull,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.sink.Write(event)
	}
}

func (d *auditDispatcher) emit(event AuditEvent) {
	if d.drop {
		select {
		case d.events <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	d.events <- event
}

// droppedCount reports how many events were discarded due to a full buffer.
func (d *auditDispatcher) droppedCount() uint64 {
	return d.dropped.Load()
}

// close drains queued events and stops the dispatcher goroutine.
func (d *auditDispatcher) close() {
	d.closeOnce.Do(func() {
		close(d.events)
	})
	<-d.done
}
