//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is a snapshot of a registry entry.
type Connection struct {
	ID        domain.ConnectionID
	Principal domain.Principal
	Room      domain.RoomName
	Sink      EventSink
}

// Recipient is a room member resolved for delivery. Generation identifies
// the membership it was resolved from: every room change starts a new one.
type Recipient struct {
	ID         domain.ConnectionID
	Sink       EventSink
	Generation uint64
}

type RegistryStats struct {
	Connections int
	Rooms       int
}

type IRegistry interface {
	Register(id domain.ConnectionID, principal domain.Principal, sink EventSink) error
	SetRoom(id domain.ConnectionID, room domain.RoomName) (domain.RoomName, error)
	Lookup(id domain.ConnectionID) (Connection, error)
	MembersOf(room domain.RoomName) []domain.ConnectionID
	RecipientsOf(room domain.RoomName) []Recipient
	IsCurrent(recipient Recipient) bool
	Unregister(id domain.ConnectionID) (domain.RoomName, error)
	Stats() RegistryStats
}

// IBroadcaster fans an event out to the current members of a room through
// its own workers.
type IBroadcaster interface {
	Broadcast(ctx context.Context, room domain.RoomName, e event.DomainEvent) error
	Workers() []Worker
	Close()
}
