package control

import (
	"context"
	"log/slog"
	"time"

	redisclient "github.com/vietddude/callguard/internal/infra/redis"
	"github.com/vietddude/callguard/internal/resilience/breaker"
)

const publishQueueSize = 256

type stateEvent struct {
	snapshot   breaker.Snapshot
	transition redisclient.Transition
}

// snapshotStore is the subset of the Redis store the publisher needs.
type snapshotStore interface {
	Publish(ctx context.Context, snap breaker.Snapshot) error
	RecordTransition(ctx context.Context, tr redisclient.Transition) error
}

// snapshotPublisher moves breaker transitions off the call path and into
// Redis.
type snapshotPublisher struct {
	store  snapshotStore
	events chan stateEvent
	log    *slog.Logger
}

func newSnapshotPublisher(store snapshotStore, log *slog.Logger) *snapshotPublisher {
	return &snapshotPublisher{
		store:  store,
		events: make(chan stateEvent, publishQueueSize),
		log:    log,
	}
}

// Enqueue never blocks; events are dropped when the queue is full.
func (p *snapshotPublisher) Enqueue(ev stateEvent) {
	select {
	case p.events <- ev:
	default:
		p.log.Warn("Snapshot queue full, dropping transition",
			"endpoint", ev.snapshot.Endpoint, "to", ev.transition.To.String())
	}
}

// Run publishes events until ctx is done, then drains what is queued.
func (p *snapshotPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case ev := <-p.events:
			p.publish(ctx, ev)
		}
	}
}

func (p *snapshotPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case ev := <-p.events:
			p.publish(ctx, ev)
		default:
			return
		}
	}
}

func (p *snapshotPublisher) publish(ctx context.Context, ev stateEvent) {
	if err := p.store.Publish(ctx, ev.snapshot); err != nil {
		p.log.Warn("Failed to publish breaker snapshot", "endpoint", ev.snapshot.Endpoint, "error", err)
	}
	if err := p.store.RecordTransition(ctx, ev.transition); err != nil {
		p.log.Warn("Failed to record breaker transition", "endpoint", ev.transition.Endpoint, "error", err)
	}
}
