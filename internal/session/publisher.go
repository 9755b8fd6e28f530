package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/observability"
)

// publisher feeds transitions to a Sink from a single goroutine. Session
// loops only enqueue; when the queue is full the transition is dropped.
type publisher struct {
	sink    Sink
	timeout time.Duration
	queue   chan Transition
	done    chan struct{}
	once    sync.Once
	metrics *observability.Metrics
	logger  *slog.Logger
}

func newPublisher(sink Sink, size int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *publisher {
	p := &publisher{
		sink:    sink,
		timeout: timeout,
		queue:   make(chan Transition, size),
		done:    make(chan struct{}),
		metrics: metrics,
		logger:  logger,
	}
	go p.run()
	return p
}

// enqueue never blocks.
func (p *publisher) enqueue(t Transition) {
	select {
	case p.queue <- t:
	default:
		p.metrics.TransitionsDropped.Inc()
		p.logger.Warn("publish queue full, transition dropped", "session_id", t.SessionID, "event", t.Event)
	}
}

func (p *publisher) run() {
	defer close(p.done)
	for t := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.sink.Publish(ctx, t)
		cancel()
		if err != nil {
			p.metrics.PublishErrors.Inc()
			p.logger.Warn("publish transition failed", "session_id", t.SessionID, "event", t.Event, "error", err)
			continue
		}
		p.metrics.TransitionsPublished.Inc()
	}
}

// close stops accepting transitions and waits for the queue to drain.
// It must only be called once no session can enqueue.
func (p *publisher) close(ctx context.Context) error {
	p.once.Do(func() { close(p.queue) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
