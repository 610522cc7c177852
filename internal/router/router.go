package router

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rickgao/tradeline/internal/connection"
	"github.com/rickgao/tradeline/internal/metrics"
	"github.com/rickgao/tradeline/internal/model"
)

// Handler receives validated events of one kind.
type Handler func(model.Event)

// Config holds configuration for the Router.
type Config struct {
	QueueSize int // Initial dispatch queue capacity. Default: 256
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// Stats contains runtime statistics.
type Stats struct {
	Received      int64
	Routed        int64
	Dropped       int64
	HandlerPanics int64
	Queue         QueueStats
}

// Router parses raw frames from the connection manager and dispatches typed
// events to subscribers.
type Router struct {
	cfg    Config
	logger *slog.Logger

	// Input from the connection manager
	input <-chan connection.RawMessage

	queue *Queue[model.Event]

	hmu      sync.RWMutex
	handlers map[model.EventKind]map[int]Handler
	nextID   int

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	readWG  sync.WaitGroup
	sendWG  sync.WaitGroup
	started atomic.Bool

	received atomic.Int64
	routed   atomic.Int64
	dropped  atomic.Int64
	panics   atomic.Int64
}

// NewRouter creates a Router reading from input.
func NewRouter(cfg Config, input <-chan connection.RawMessage, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	handlers := make(map[model.EventKind]map[int]Handler, len(model.EventKinds))
	for _, k := range model.EventKinds {
		handlers[k] = make(map[int]Handler)
	}

	return &Router{
		cfg:      cfg,
		logger:   logger.With("component", "router"),
		input:    input,
		queue:    NewQueue[model.Event](cfg.QueueSize),
		handlers: handlers,
	}
}

// Subscribe registers h for events of kind. The returned function removes it.
func (r *Router) Subscribe(kind model.EventKind, h Handler) (func(), error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
	if h == nil {
		return nil, fmt.Errorf("nil handler for %q", kind)
	}

	r.hmu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers[kind][id] = h
	r.hmu.Unlock()

	return func() {
		r.hmu.Lock()
		delete(r.handlers[kind], id)
		r.hmu.Unlock()
	}, nil
}

// SubscribeAll registers h for every kind.
func (r *Router) SubscribeAll(h Handler) func() {
	cancels := make([]func(), 0, len(model.EventKinds))
	for _, k := range model.EventKinds {
		cancel, _ := r.Subscribe(k, h)
		cancels = append(cancels, cancel)
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// OnOrderEvent subscribes to executed orders.
func (r *Router) OnOrderEvent(fn func(model.OrderExecuted)) func() {
	cancel, _ := r.Subscribe(model.KindOrderExecuted, func(e model.Event) {
		fn(e.(model.OrderExecuted))
	})
	return cancel
}

// OnClosePosition subscribes to close-all-positions results.
func (r *Router) OnClosePosition(fn func(model.PositionsClosed)) func() {
	cancel, _ := r.Subscribe(model.KindPositionsClosed, func(e model.Event) {
		fn(e.(model.PositionsClosed))
	})
	return cancel
}

// OnCancelOrder subscribes to cancel results.
func (r *Router) OnCancelOrder(fn func(model.OrderCancelled)) func() {
	cancel, _ := r.Subscribe(model.KindOrderCancelled, func(e model.Event) {
		fn(e.(model.OrderCancelled))
	})
	return cancel
}

// OnModifyOrder subscribes to modify results.
func (r *Router) OnModifyOrder(fn func(model.OrderModified)) func() {
	cancel, _ := r.Subscribe(model.KindOrderModified, func(e model.Event) {
		fn(e.(model.OrderModified))
	})
	return cancel
}

// OnMasterContractDownload subscribes to reference data refresh results.
func (r *Router) OnMasterContractDownload(fn func(model.ReferenceDataRefresh)) func() {
	cancel, _ := r.Subscribe(model.KindReferenceDataRefresh, func(e model.Event) {
		fn(e.(model.ReferenceDataRefresh))
	})
	return cancel
}

// Start begins routing messages.
func (r *Router) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("router already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.readWG.Add(1)
	go r.routeLoop()

	r.sendWG.Add(1)
	go r.dispatchLoop()

	r.logger.Info("event router started", "queue_size", r.cfg.QueueSize)
	return nil
}

// Stop stops reading, delivers events already queued and waits for the
// dispatch goroutine, or until ctx is done.
func (r *Router) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}
	r.logger.Info("stopping event router")

	r.cancel()
	r.readWG.Wait()
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.sendWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out", "pending", r.queue.Len())
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	return Stats{
		Received:      r.received.Load(),
		Routed:        r.routed.Load(),
		Dropped:       r.dropped.Load(),
		HandlerPanics: r.panics.Load(),
		Queue:         r.queue.Stats(),
	}
}

// Route parses one frame and queues the resulting event. It reports whether
// the frame was accepted.
func (r *Router) Route(raw connection.RawMessage) bool {
	r.received.Add(1)

	ev, err := Parse(raw.Data, raw.ReceivedAt)
	if err != nil {
		r.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues(dropReason(err)).Inc()
		r.logger.Warn("dropping inbound frame",
			"error", err,
			"bytes", len(raw.Data),
		)
		return false
	}

	if !r.queue.Push(ev) {
		r.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues("stopped").Inc()
		return false
	}
	return true
}

// routeLoop is the main reading goroutine.
func (r *Router) routeLoop() {
	defer r.readWG.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.Route(raw)
		}
	}
}

// dispatchLoop delivers queued events in order.
func (r *Router) dispatchLoop() {
	defer r.sendWG.Done()

	for {
		ev, ok := r.queue.Pop()
		if !ok {
			return
		}
		r.dispatch(ev)
	}
}

func (r *Router) dispatch(ev model.Event) {
	r.hmu.RLock()
	subs := r.handlers[ev.Kind()]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, subs[id])
	}
	r.hmu.RUnlock()

	r.routed.Add(1)
	metrics.EventsRouted.WithLabelValues(string(ev.Kind())).Inc()

	for _, h := range hs {
		r.call(h, ev)
	}
}

// call runs h, containing any panic to that handler.
func (r *Router) call(h Handler, ev model.Event) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("event handler panicked",
				"kind", ev.Kind(),
				"panic", p,
			)
		}
	}()
	h(ev)
}
