package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type Set map[domain.ConnectionID]struct{}

type entry struct {
	principal  domain.Principal
	room       domain.RoomName
	sink       contract.EventSink
	generation uint64
}

// Registry is the single source of truth for who receives broadcasts in a
// room. Both indexes live behind one lock so they never disagree.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*entry // map connection -> entry
	roomMembers map[domain.RoomName]Set        // map room -> connections
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*entry),
		roomMembers: make(map[domain.RoomName]Set),
	}
}

// Register adds an authenticated connection that has not joined any room.
func (r *Registry) Register(id domain.ConnectionID, principal domain.Principal, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; ok {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateConnection, id)
	}
	r.connections[id] = &entry{principal: principal, sink: sink}
	return nil
}

// SetRoom moves a connection out of its current room and into room, or
// into no room at all when room is domain.NoRoom. It returns the room the
// connection was in before the move. Every call starts a new membership
// generation, rejoining the same room included.
func (r *Registry) SetRoom(id domain.ConnectionID, room domain.RoomName) (domain.RoomName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[id]
	if !ok {
		return domain.NoRoom, fmt.Errorf("%w: %s", errors.ErrUnknownConnection, id)
	}
	previous := e.room
	r.removeMember(previous, id)
	if room != domain.NoRoom {
		if _, ok := r.roomMembers[room]; !ok {
			r.roomMembers[room] = make(Set)
		}
		r.roomMembers[room][id] = struct{}{}
	}
	e.room = room
	e.generation++
	return previous, nil
}

func (r *Registry) Lookup(id domain.ConnectionID) (contract.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.connections[id]
	if !ok {
		return contract.Connection{}, fmt.Errorf("%w: %s", errors.ErrUnknownConnection, id)
	}
	return contract.Connection{ID: id, Principal: e.principal, Room: e.room, Sink: e.sink}, nil
}

// MembersOf returns a snapshot of the connections currently in room.
func (r *Registry) MembersOf(room domain.RoomName) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomMembers[room]
	ids := make([]domain.ConnectionID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RecipientsOf resolves the members of room into their sinks in a single
// read-locked pass, so the result never mixes two membership states.
func (r *Registry) RecipientsOf(room domain.RoomName) []contract.Recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomMembers[room]
	recipients := make([]contract.Recipient, 0, len(members))
	for id := range members {
		if e, ok := r.connections[id]; ok {
			recipients = append(recipients, contract.Recipient{ID: id, Sink: e.sink, Generation: e.generation})
		}
	}
	return recipients
}

// IsCurrent reports whether recipient still holds the membership it was
// resolved from. A delivery queued before a leave or a rejoin is stale.
func (r *Registry) IsCurrent(recipient contract.Recipient) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.connections[recipient.ID]
	return ok && e.generation == recipient.Generation
}

// Unregister removes a connection and vacates its room. Empty rooms are
// dropped from the index to prevent memory leaks over time.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.RoomName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.connections[id]
	if !ok {
		return domain.NoRoom, fmt.Errorf("%w: %s", errors.ErrUnknownConnection, id)
	}
	r.removeMember(e.room, id)
	delete(r.connections, id)
	return e.room, nil
}

func (r *Registry) Stats() contract.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contract.RegistryStats{Connections: len(r.connections), Rooms: len(r.roomMembers)}
}

// removeMember must be called with the write lock held.
func (r *Registry) removeMember(room domain.RoomName, id domain.ConnectionID) {
	if room == domain.NoRoom {
		return
	}
	if members, ok := r.roomMembers[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}
