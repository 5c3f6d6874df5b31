// Package notify delivers recognition and capture events to listeners such as
// plugins, MQTT subscribers and websocket clients.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/logging"
)

// Kind identifies what an Event reports.
type Kind string

const (
	// KindMatch reports a recognized gesture.
	KindMatch Kind = "match"
	// KindState reports a capture state transition.
	KindState Kind = "state"
	// KindCommit reports a recorded gesture stored in the library.
	KindCommit Kind = "commit"
)

// Event is a single notification.
type Event struct {
	Kind     Kind      `json:"kind"`
	Gesture  string    `json:"gesture,omitempty"`
	Distance float64   `json:"distance,omitempty"`
	State    string    `json:"state,omitempty"`
	Frames   int       `json:"frames,omitempty"`
	Time     time.Time `json:"time"`
}

// Notifier receives events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// DefaultQueueSize is the number of events a Fanout buffers before dropping.
const DefaultQueueSize = 64

// Fanout delivers events to every notifier from a single goroutine, in order.
// Publish never blocks: when the queue is full the event is dropped.
// Notifier errors are logged.
type Fanout struct {
	ctx       context.Context
	notifiers []Notifier
	events    chan Event
	done      chan struct{}
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewFanout starts a Fanout. ctx is passed to every notifier and supplies the
// logger.
func NewFanout(ctx context.Context, size int, notifiers ...Notifier) *Fanout {
	if size <= 0 {
		size = DefaultQueueSize
	}

	f := &Fanout{
		ctx:       ctx,
		notifiers: notifiers,
		events:    make(chan Event, size),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// Publish queues ev. It reports false when the event was dropped.
func (f *Fanout) Publish(ev Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return false
	}

	select {
	case f.events <- ev:
		return true
	default:
		f.dropped.Add(1)
		logging.FromContext(f.ctx).Warnw("dropping event, queue full", "kind", ev.Kind, "gesture", ev.Gesture)
		return false
	}
}

// Notify implements Notifier so fanouts can be nested.
func (f *Fanout) Notify(_ context.Context, ev Event) error {
	f.Publish(ev)
	return nil
}

// Dropped returns the number of events lost to a full queue.
func (f *Fanout) Dropped() int64 {
	return f.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered.
func (f *Fanout) Close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	f.mu.Unlock()

	<-f.done
}

func (f *Fanout) run() {
	defer close(f.done)

	logger := logging.FromContext(f.ctx)
	for ev := range f.events {
		for _, n := range f.notifiers {
			if err := n.Notify(f.ctx, ev); err != nil {
				logger.Warnw("notifier failed", "kind", ev.Kind, "gesture", ev.Gesture, "error", err)
			}
		}
	}
}
