package hub

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("hub stopped")

// Hub serialises work onto a single goroutine. Everything that touches the
// session registry is submitted here, so registry code never needs a lock.
type Hub struct {
	events  chan func()
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func New(queueSize int) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		events:  make(chan func(), queueSize),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run executes submitted steps until ctx is cancelled or Stop is called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	log.Info().Int("queueSize", cap(h.events)).Msg("hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub stopped")
			return
		case <-h.ctx.Done():
			log.Info().Msg("hub stopped")
			return
		case fn := <-h.events:
			h.exec(fn)
		}
	}
}

// exec runs one step. A panic is logged and swallowed so a fault in one
// session cannot take the loop, and every other session, down with it.
func (h *Hub) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic in hub step")
		}
	}()
	fn()
}

// Do queues fn without waiting for it to run. It blocks only while the queue
// is full and reports false once the hub has stopped.
func (h *Hub) Do(fn func()) bool {
	select {
	case <-h.stopped:
		return false
	case <-h.ctx.Done():
		return false
	default:
	}

	select {
	case h.events <- fn:
		return true
	case <-h.stopped:
		return false
	case <-h.ctx.Done():
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (h *Hub) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !h.Do(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		// fn may still have run just before the loop exited.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop ends the loop. Steps still queued are discarded.
func (h *Hub) Stop() {
	h.once.Do(h.cancel)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}
