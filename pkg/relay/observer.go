package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultObserverQueue is how many messages may wait for the observers.
const DefaultObserverQueue = 1024

// Observer is notified of every live outbound message after it was broadcast.
// Replays sent on attach are not observed. Observers run on a single worker
// goroutine in broadcast order, so a slow observer delays the others but never
// the request. Implementations must not call back into the Controller
// synchronously.
type Observer interface {
	Observe(ctx context.Context, req Request, msg Message)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, req Request, msg Message)

func (f ObserverFunc) Observe(ctx context.Context, req Request, msg Message) {
	f(ctx, req, msg)
}

type observation struct {
	req Request
	msg Message
}

// dispatcher hands messages to the observers off the request goroutines.
// When the queue is full non-terminal messages are dropped; terminal ones
// wait for room.
type dispatcher struct {
	ctx       context.Context
	observers []Observer

	mu     sync.RWMutex
	closed bool
	queue  chan observation
	done   chan struct{}
}

func newDispatcher(ctx context.Context, observers []Observer, size int) *dispatcher {
	d := &dispatcher{
		ctx:       ctx,
		observers: observers,
		queue:     make(chan observation, size),
		done:      make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) enqueue(req Request, msg Message) {
	if len(d.observers) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	o := observation{req: req, msg: msg}
	if msg.Type.Terminal() {
		d.queue <- o
		return
	}
	select {
	case d.queue <- o:
	default:
		log.Warn().
			Str("component", "relay").
			Str("request_id", req.ID).
			Str("type", string(msg.Type)).
			Msg("observer queue full, dropping message")
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for o := range d.queue {
		for _, obs := range d.observers {
			obs.Observe(d.ctx, o.req, o.msg)
		}
	}
}

// close stops accepting messages and waits until the queued ones were observed.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
