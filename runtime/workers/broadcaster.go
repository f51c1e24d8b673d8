package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultShards      = 4
	DefaultShardBuffer = 1024
	DefaultSinkTimeout = 2 * time.Second
)

var _ contract.IBroadcaster = (*RoomBroadcaster)(nil)

// deliveryJob carries the recipients resolved when the broadcast was
// requested, so a connection joining later never gets it.
type deliveryJob struct {
	room       domain.RoomName
	event      event.DomainEvent
	recipients []contract.Recipient
}

// RoomBroadcaster delivers room events to the room's current members.
//
// A room always hashes to the same shard and a shard handles its jobs one at
// a time, so members observe broadcasts of a room in the order they were
// requested. Delivery is at most once per recipient: a failing, slow or
// panicking sink only loses its own copy.
type RoomBroadcaster struct {
	log         *slog.Logger
	registry    contract.IRegistry
	shards      []*shardWorker
	sinkTimeout time.Duration
	stopped     chan struct{}
	stopOnce    sync.Once
}

func NewRoomBroadcaster(log *slog.Logger, registry contract.IRegistry,
	shards, bufferSize int, sinkTimeout time.Duration) *RoomBroadcaster {
	if shards <= 0 {
		shards = DefaultShards
	}
	if bufferSize <= 0 {
		bufferSize = DefaultShardBuffer
	}
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}
	b := &RoomBroadcaster{
		log:         log,
		registry:    registry,
		sinkTimeout: sinkTimeout,
		stopped:     make(chan struct{}),
	}
	for i := 0; i < shards; i++ {
		b.shards = append(b.shards, &shardWorker{
			index:       i,
			jobs:        make(chan deliveryJob, bufferSize),
			broadcaster: b,
		})
	}
	return b
}

// Workers returns one worker per shard, to be run by the supervisor.
func (b *RoomBroadcaster) Workers() []contract.Worker {
	workers := make([]contract.Worker, 0, len(b.shards))
	for _, s := range b.shards {
		workers = append(workers, s)
	}
	return workers
}

// Queues exposes the shard queues to the capacity sampler.
func (b *RoomBroadcaster) Queues() []NamedQueue {
	queues := make([]NamedQueue, 0, len(b.shards))
	for _, s := range b.shards {
		queues = append(queues, NamedQueue{
			Name:     fmt.Sprintf("shard-%d", s.index),
			Length:   func() int { return len(s.jobs) },
			Capacity: cap(s.jobs),
		})
	}
	return queues
}

// Broadcast snapshots the room's recipients and queues the delivery.
// It only fails when the job cannot be queued.
func (b *RoomBroadcaster) Broadcast(ctx context.Context, room domain.RoomName, e event.DomainEvent) error {
	recipients := b.registry.RecipientsOf(room)
	if len(recipients) == 0 {
		b.log.Debug("No recipient in room", "room", room)
		return nil
	}
	job := deliveryJob{room: room, event: e, recipients: recipients}
	shard := b.shardFor(room)

	select {
	case <-b.stopped:
		return errors.ErrBroadcasterStopped
	default:
	}
	select {
	case shard.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue broadcast for %q: %w", room, ctx.Err())
	case <-b.stopped:
		return errors.ErrBroadcasterStopped
	}
}

// Close refuses further broadcasts. Queued jobs are dropped when the shard
// workers are cancelled.
func (b *RoomBroadcaster) Close() {
	b.stopOnce.Do(func() { close(b.stopped) })
}

func (b *RoomBroadcaster) shardFor(room domain.RoomName) *shardWorker {
	return b.shards[xxhash.Sum64String(string(room))%uint64(len(b.shards))]
}

// deliver hands the event to every recipient, one after the other.
// Recipients that left or rejoined the room since the snapshot are skipped:
// a rejoin already replayed the message as history.
func (b *RoomBroadcaster) deliver(ctx context.Context, job deliveryJob) {
	for _, recipient := range job.recipients {
		if !b.registry.IsCurrent(recipient) {
			b.log.Debug("Membership changed, delivery skipped", "connection", recipient.ID, "room", job.room)
			observability.Deliveries.WithLabelValues(observability.OutcomeStale).Inc()
			continue
		}
		outcome := b.deliverOne(ctx, recipient, job.event)
		observability.Deliveries.WithLabelValues(outcome).Inc()
	}
}

// deliverOne bounds a single sink by sinkTimeout and contains its panics.
func (b *RoomBroadcaster) deliverOne(ctx context.Context, recipient contract.Recipient, e event.DomainEvent) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Sink panicked", "connection", recipient.ID, "room", e.RoomID(), "panic", r)
			outcome = observability.OutcomePanic
		}
	}()

	sinkCtx, cancel := context.WithTimeout(ctx, b.sinkTimeout)
	defer cancel()

	err := recipient.Sink.Consume(sinkCtx, e)
	switch {
	case err == nil:
		return observability.OutcomeDelivered
	case goerrors.Is(err, context.DeadlineExceeded):
		b.log.Warn("Sink timed out", "connection", recipient.ID, "room", e.RoomID())
		return observability.OutcomeTimeout
	case goerrors.Is(err, errors.ErrSinkClosed):
		b.log.Debug("Sink already closed", "connection", recipient.ID)
		return observability.OutcomeFailed
	default:
		b.log.Warn("Delivery failed", "connection", recipient.ID, "room", e.RoomID(), "error", err)
		return observability.OutcomeFailed
	}
}

// shardWorker drains one FIFO queue of delivery jobs.
type shardWorker struct {
	index       int
	jobs        chan deliveryJob
	broadcaster *RoomBroadcaster
}

func (s *shardWorker) Run(ctx context.Context) error {
	for {
		select {
		case job := <-s.jobs:
			s.broadcaster.deliver(ctx, job)
		case <-ctx.Done():
			s.broadcaster.log.Debug("Context done, stopping broadcast shard", "shard", s.index)
			return nil
		}
	}
}
