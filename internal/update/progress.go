package update

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a UI-facing update event.
type EventType string

const (
	EventCheck        EventType = "check"
	EventAvailable    EventType = "available"
	EventNotAvailable EventType = "not-available"
	EventDownload     EventType = "download"
	EventDownloaded   EventType = "downloaded"
	EventVerified     EventType = "verified"
	EventInstalling   EventType = "installing"
	EventError        EventType = "error"
)

// EventProgress is the transfer portion of an Event.
type EventProgress struct {
	Percent     float64 `json:"percent"`
	Transferred uint64  `json:"transferred"`
	Total       uint64  `json:"total"`
}

// Event is one message on the one-way stream from the coordinator to the
// interactive layer.
type Event struct {
	Type      EventType     `json:"type"`
	Phase     Phase         `json:"phase"`
	Token     uint64        `json:"token"`
	Progress  EventProgress `json:"progress"`
	Version   string        `json:"version,omitempty"`
	Manifest  *Manifest     `json:"-"`
	Path      string        `json:"path,omitempty"`
	Err       *ErrorRecord  `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// DefaultEventBuffer is the capacity of a coordinator's event stream.
const DefaultEventBuffer = 64

// ProgressChannel is a bounded, non-blocking event stream. When the buffer is
// full the oldest queued event is dropped to make room.
type ProgressChannel struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

// NewProgressChannel creates a stream holding up to buffer events.
func NewProgressChannel(buffer int) *ProgressChannel {
	if buffer < 1 {
		buffer = 1
	}
	return &ProgressChannel{ch: make(chan Event, buffer)}
}

// Publish enqueues ev without blocking. Publishing after Close is a no-op.
func (p *ProgressChannel) Publish(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for {
		select {
		case p.ch <- ev:
			return
		default:
		}
		select {
		case <-p.ch:
			p.dropped.Add(1)
		default:
		}
	}
}

// Events returns the consumer side of the stream.
func (p *ProgressChannel) Events() <-chan Event {
	return p.ch
}

// Dropped returns how many events were discarded because the consumer fell
// behind.
func (p *ProgressChannel) Dropped() uint64 {
	return p.dropped.Load()
}

// Close ends the stream. Consumers drain what is buffered and then see the
// channel closed.
func (p *ProgressChannel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.ch)
}
