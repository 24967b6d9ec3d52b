package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/GriffinCanCode/codelive/internal/shared/broadcast"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
)

// ErrClosed is returned by Flush after Close
var ErrClosed = errors.New("relay closed")

// Observer is notified of every accepted and ignored message
type Observer interface {
	ConsoleEvent(method string)
	ConsoleIgnored()
}

// Options tunes a Relay
type Options struct {
	MaxLines int
	Observer Observer
	Clock    clock.Clock
}

type inbound struct {
	instance id.InstanceID
	raw      []byte
	barrier  chan struct{}
}

// Relay is the single consumer of sandbox console messages. Messages are
// processed strictly in the order they were posted: each accepted message
// becomes one panel line and is then fanned out to subscribers.
type Relay struct {
	panel    *Panel
	subs     *broadcast.Broadcaster[Event]
	observer Observer
	clock    clock.Clock

	mu     sync.Mutex
	queue  []inbound
	closed bool
	wake   chan struct{}
	done   chan struct{}

	seq uint64
}

// New creates a relay and starts its consumer goroutine
func New(opts Options) *Relay {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	r := &Relay{
		panel:    NewPanel(opts.MaxLines),
		subs:     broadcast.New[Event](),
		observer: opts.Observer,
		clock:    opts.Clock,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Post enqueues a raw payload from a sandbox instance. It never blocks on
// the consumer.
func (r *Relay) Post(instance id.InstanceID, raw []byte) {
	r.enqueue(inbound{instance: instance, raw: append([]byte(nil), raw...)})
}

// Sink returns the postMessage bridge for one sandbox instance
func (r *Relay) Sink(instance id.InstanceID) func([]byte) {
	return func(raw []byte) { r.Post(instance, raw) }
}

// Flush blocks until every message posted before the call has been
// processed
func (r *Relay) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !r.enqueue(inbound{barrier: barrier}) {
		return ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe streams accepted events. Delivery is at-most-once per
// subscriber; the panel keeps the full record.
func (r *Relay) Subscribe(buffer int) (<-chan Event, func()) {
	return r.subs.Subscribe(buffer)
}

// Panel returns the host console panel
func (r *Relay) Panel() *Panel { return r.panel }

// Close stops the consumer after draining queued messages
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.signal()
	<-r.done
	r.subs.Close()
}

func (r *Relay) enqueue(in inbound) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.queue = append(r.queue, in)
	r.mu.Unlock()

	r.signal()
	return true
}

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) run() {
	defer close(r.done)

	for range r.wake {
		for {
			r.mu.Lock()
			batch := r.queue
			r.queue = nil
			closed := r.closed
			r.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, in := range batch {
				r.process(in)
			}
		}
	}
}

func (r *Relay) process(in inbound) {
	if in.barrier != nil {
		close(in.barrier)
		return
	}

	msg, ok := Decode(in.raw)
	if !ok {
		if r.observer != nil {
			r.observer.ConsoleIgnored()
		}
		return
	}

	r.seq++
	e := Event{
		Seq:      r.seq,
		Instance: in.instance,
		Method:   msg.Method,
		Args:     msg.Args,
		Time:     r.clock.Now(),
	}

	r.panel.Append(e)
	r.subs.Publish(e)
	if r.observer != nil {
		r.observer.ConsoleEvent(string(e.Method))
	}
}

// Since returns panel lines newer than seq
func (r *Relay) Since(seq uint64) []Event {
	lines := r.panel.Lines()
	for i, e := range lines {
		if e.Seq > seq {
			return lines[i:]
		}
	}
	return nil
}
