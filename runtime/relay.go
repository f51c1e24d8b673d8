// Package runtime drives the lifecycle of relay connections.
// It orders joins, sends and broadcasts without holding any domain rule.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxContentLength = 4000
	defaultSinkTimeout      = 2 * time.Second
)

// RelayOptions tunes a Relay. Zero values fall back to defaults.
type RelayOptions struct {
	HistoryLimit     int
	MaxContentLength int
	SinkTimeout      time.Duration
	// Moderator is optional, content is stored as sent when nil.
	Moderator *moderation.Moderator
}

// Relay is the session protocol of the chat: a connection authenticates
// once, then joins, leaves and sends until it disconnects.
//
// Per room, Join and Send run under the same lock, so the history a joiner
// receives and the live broadcasts that follow neither overlap nor leave a
// gap, and broadcasts leave in the order messages were stored.
type Relay struct {
	log         *slog.Logger
	registry    contract.IRegistry
	repository  repositories.IMessageRepository
	broadcaster contract.IBroadcaster
	supervisor  contract.ISupervisor
	locks       *roomLocks
	options     RelayOptions
}

func NewRelay(log *slog.Logger, registry contract.IRegistry, repository repositories.IMessageRepository,
	broadcaster contract.IBroadcaster, supervisor contract.ISupervisor, options RelayOptions) *Relay {
	if options.HistoryLimit <= 0 {
		options.HistoryLimit = repositories.DefaultHistoryLimit
	}
	if options.MaxContentLength <= 0 {
		options.MaxContentLength = DefaultMaxContentLength
	}
	if options.SinkTimeout <= 0 {
		options.SinkTimeout = defaultSinkTimeout
	}
	return &Relay{
		log:         log,
		registry:    registry,
		repository:  repository,
		broadcaster: broadcaster,
		supervisor:  supervisor,
		locks:       newRoomLocks(),
		options:     options,
	}
}

// Start runs the broadcaster workers under supervision and blocks until ctx
// is cancelled or Stop is called.
func (r *Relay) Start(ctx context.Context) {
	r.supervisor.Add(r.broadcaster.Workers()...)
	r.log.Info("Starting relay and all supervised workers")
	r.supervisor.Run(ctx)
}

// Stop refuses new broadcasts and stops the workers.
func (r *Relay) Stop() {
	r.broadcaster.Close()
	r.supervisor.Stop()
}

// Connect registers an authenticated principal. The connection starts
// outside of any room.
func (r *Relay) Connect(principal domain.Principal, sink contract.EventSink) (domain.ConnectionID, error) {
	if principal.UserID == "" {
		return "", fmt.Errorf("%w: missing user id", errors.ErrAuthentication)
	}
	id := domain.NewConnectionID()
	if err := r.registry.Register(id, principal, sink); err != nil {
		return "", err
	}
	observability.ActiveConnections.Inc()
	r.log.Debug("Connection registered", "connection", id, "user", principal.UserID)
	return id, nil
}

// Join moves the connection into room and replays the room's recent history
// to it alone. Joining the room it is already in replays history again.
func (r *Relay) Join(ctx context.Context, id domain.ConnectionID, room domain.RoomName) error {
	if err := room.Validate(); err != nil {
		return err
	}
	conn, err := r.registry.Lookup(id)
	if err != nil {
		return err
	}

	unlock := r.locks.lock(room)
	defer unlock()

	previous, err := r.registry.SetRoom(id, room)
	if err != nil {
		return err
	}
	r.refreshRoomGauge()
	r.log.Debug("Connection joined room", "connection", id, "room", room, "previous", previous)

	history, err := r.repository.RecentHistory(ctx, room, r.options.HistoryLimit)
	if err != nil {
		r.log.Error("History not loaded", "connection", id, "room", room, "error", err)
		return err
	}
	if err := r.deliver(ctx, conn.Sink, event.History{Room: room, Messages: history}); err != nil {
		r.log.Warn("History not delivered", "connection", id, "room", room, "error", err)
		return err
	}
	return nil
}

// Leave takes the connection out of its room, if any.
func (r *Relay) Leave(id domain.ConnectionID) error {
	previous, err := r.registry.SetRoom(id, domain.NoRoom)
	if err != nil {
		return err
	}
	r.refreshRoomGauge()
	r.log.Debug("Connection left room", "connection", id, "room", previous)
	return nil
}

// LeaveRoom leaves room only if the connection is in it. An empty room
// means whatever room the connection is in.
func (r *Relay) LeaveRoom(id domain.ConnectionID, room domain.RoomName) error {
	if room == domain.NoRoom {
		return r.Leave(id)
	}
	conn, err := r.registry.Lookup(id)
	if err != nil {
		return err
	}
	if conn.Room != room {
		r.log.Debug("Leave ignored, not in room", "connection", id, "room", room, "current", conn.Room)
		return nil
	}
	return r.Leave(id)
}

// Send stores a message in the connection's room and broadcasts it to every
// member, the sender included. On failure the sender alone receives a
// SendFailed event and nothing is broadcast.
func (r *Relay) Send(ctx context.Context, id domain.ConnectionID, cmd domain.SendMessageCommand) error {
	conn, err := r.registry.Lookup(id)
	if err != nil {
		return err
	}
	if err := r.send(ctx, conn, cmd); err != nil {
		r.reportFailure(ctx, conn, err)
		return err
	}
	return nil
}

func (r *Relay) send(ctx context.Context, conn contract.Connection, cmd domain.SendMessageCommand) error {
	room := conn.Room
	if room == domain.NoRoom {
		return errors.ErrNotInRoom
	}
	if cmd.Room != domain.NoRoom && cmd.Room != room {
		return fmt.Errorf("%w: %q", errors.ErrNotInRoom, cmd.Room)
	}

	draft, err := domain.NewDraft(conn.Principal, room, cmd.Content, cmd.Attachment, r.options.MaxContentLength)
	if err != nil {
		return err
	}
	if r.options.Moderator != nil && draft.Content != "" {
		censored, words := r.options.Moderator.Censor(draft.Content)
		if len(words) > 0 {
			r.log.Debug("Message censored", "room", room, "words", len(words))
			draft.Content = censored
		}
	}

	unlock := r.locks.lock(room)
	defer unlock()

	// The connection may have moved while waiting for the room
	current, err := r.registry.Lookup(conn.ID)
	if err != nil {
		return err
	}
	if current.Room != room {
		return errors.ErrNotInRoom
	}

	message, err := r.repository.Append(ctx, draft)
	if err != nil {
		return err
	}
	observability.MessagesPersisted.Inc()

	if err := r.broadcaster.Broadcast(ctx, room, event.MessageBroadcast{Room: room, Message: message}); err != nil {
		r.log.Error("Stored message not broadcast", "room", room, "message", message.ID, "error", err)
		return err
	}
	return nil
}

// Disconnect forgets the connection and closes its sink. Disconnecting an
// unknown connection is a no-op.
func (r *Relay) Disconnect(id domain.ConnectionID) {
	conn, err := r.registry.Lookup(id)
	if err != nil {
		return
	}
	room, err := r.registry.Unregister(id)
	if err != nil {
		return
	}
	if closer, ok := conn.Sink.(interface{ Close() }); ok {
		closer.Close()
	}
	observability.ActiveConnections.Dec()
	r.refreshRoomGauge()
	r.log.Debug("Connection unregistered", "connection", id, "room", room)
}

func (r *Relay) reportFailure(ctx context.Context, conn contract.Connection, cause error) {
	reason, label := failureReason(cause)
	observability.SendFailures.WithLabelValues(label).Inc()
	r.log.Debug("Send rejected", "connection", conn.ID, "reason", label, "error", cause)

	if err := r.deliver(ctx, conn.Sink, event.SendFailed{Room: conn.Room, Reason: reason}); err != nil {
		r.log.Debug("Send failure not delivered", "connection", conn.ID, "error", err)
	}
}

func (r *Relay) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, r.options.SinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, e)
}

func (r *Relay) refreshRoomGauge() {
	observability.ActiveRooms.Set(float64(r.registry.Stats().Rooms))
}

// failureReason returns what the sender is told and the metric label.
// Storage details never reach the client.
func failureReason(err error) (string, string) {
	switch {
	case goerrors.Is(err, errors.ErrValidation):
		return err.Error(), "validation"
	case goerrors.Is(err, errors.ErrNotInRoom):
		return errors.ErrNotInRoom.Error(), "not_in_room"
	case goerrors.Is(err, errors.ErrStorage):
		return errors.ErrStorage.Error(), "storage"
	case goerrors.Is(err, errors.ErrBroadcasterStopped), goerrors.Is(err, context.Canceled),
		goerrors.Is(err, context.DeadlineExceeded):
		return "message could not be sent", "broadcast"
	default:
		return "message could not be sent", "unknown"
	}
}
