// Package domain contains core concepts of the chat relay.
// This file defines the identities attached to live connections.
// No runtime, network, or UI logic should be added here.
package domain

import "github.com/google/uuid"

// Principal is the authenticated identity behind a connection.
type Principal struct {
	UserID      string
	DisplayName string
}

// ConnectionID identifies one live socket.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
