package event

import (
	"context"
	"sync"

	"github.com/jaennil/guide_helper/backend/vtiles/pkg/metrics"
)

// Propagation is a handler's decision about the handlers after it.
type Propagation int

const (
	Propagate Propagation = iota
	Stop
)

func (p Propagation) String() string {
	if p == Stop {
		return "stop"
	}
	return "propagate"
}

type Handler interface {
	Handle(ctx context.Context, e Event) Propagation
}

type HandlerFunc func(ctx context.Context, e Event) Propagation

func (f HandlerFunc) Handle(ctx context.Context, e Event) Propagation {
	return f(ctx, e)
}

// Dispatcher runs handlers in registration order until one returns Stop.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewDispatcher(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

func (d *Dispatcher) Dispatch(ctx context.Context, e Event) Propagation {
	metrics.EventsDispatched.WithLabelValues(string(e.Kind())).Inc()

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, h := range handlers {
		if h.Handle(ctx, e) == Stop {
			return Stop
		}
	}
	return Propagate
}
