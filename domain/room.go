package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
)

const maxRoomNameLength = 128

// RoomName identifies a broadcast domain. Rooms are not persisted: a room
// exists as long as at least one connection has joined it.
type RoomName string

// NoRoom is the membership of a connection that has not joined any room.
const NoRoom RoomName = ""

func (r RoomName) Validate() error {
	if strings.TrimSpace(string(r)) == "" {
		return fmt.Errorf("%w: room is required", errors.ErrValidation)
	}
	if len(r) > maxRoomNameLength {
		return fmt.Errorf("%w: room name longer than %d bytes", errors.ErrValidation, maxRoomNameLength)
	}
	return nil
}

func (r RoomName) String() string {
	return string(r)
}
