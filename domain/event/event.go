// Package event defines what the relay emits towards connections.
package event

import (
	"chat-relay/domain"
)

type DomainEvent interface {
	RoomID() domain.RoomName
}

// History is the bounded replay delivered to a connection that just joined.
// Messages are ordered oldest first.
type History struct {
	Room     domain.RoomName
	Messages []domain.Message
}

func (h History) RoomID() domain.RoomName {
	return h.Room
}

// MessageBroadcast is delivered to every member of the room, sender included.
type MessageBroadcast struct {
	Room    domain.RoomName
	Message domain.Message
}

func (m MessageBroadcast) RoomID() domain.RoomName {
	return m.Room
}

// SendFailed is delivered to the sending connection only.
type SendFailed struct {
	Room   domain.RoomName
	Reason string
}

func (s SendFailed) RoomID() domain.RoomName {
	return s.Room
}
