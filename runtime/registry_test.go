package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func alice() domain.Principal { return domain.Principal{UserID: "u-1", DisplayName: "alice"} }

func TestRegistry_Register_Without_Room(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := domain.NewConnectionID()

	// Given no connection is registered
	req.Equal(0, registry.Stats().Connections)

	// When a connection registers
	req.NoError(registry.Register(id, alice(), Sink{}))

	// Then it is known but belongs to no room
	conn, err := registry.Lookup(id)
	req.NoError(err)
	req.Equal(domain.NoRoom, conn.Room)
	req.Equal("alice", conn.Principal.DisplayName)
	req.Equal(1, registry.Stats().Connections)
	req.Equal(0, registry.Stats().Rooms)
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := domain.NewConnectionID()
	req.NoError(registry.Register(id, alice(), Sink{}))

	// When the same connection registers twice
	err := registry.Register(id, alice(), Sink{})

	// Then the registry refuses it
	req.ErrorIs(err, errors.ErrDuplicateConnection)
	req.Equal(1, registry.Stats().Connections)
}

func TestRegistry_SetRoom_Moves_Between_Rooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := domain.NewConnectionID()
	req.NoError(registry.Register(id, alice(), Sink{}))

	// Given the connection is in "general"
	previous, err := registry.SetRoom(id, "general")
	req.NoError(err)
	req.Equal(domain.NoRoom, previous)

	// When it switches to "random"
	previous, err = registry.SetRoom(id, "random")
	req.NoError(err)

	// Then it left "general" which no longer exists
	req.Equal(domain.RoomName("general"), previous)
	req.Empty(registry.MembersOf("general"))
	req.Equal([]domain.ConnectionID{id}, registry.MembersOf("random"))
	req.Equal(1, registry.Stats().Rooms)
}

func TestRegistry_SetRoom_NoRoom_Leaves(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := domain.NewConnectionID()
	req.NoError(registry.Register(id, alice(), Sink{}))
	_, err := registry.SetRoom(id, "general")
	req.NoError(err)

	// When the connection leaves
	previous, err := registry.SetRoom(id, domain.NoRoom)

	// Then it is registered without room
	req.NoError(err)
	req.Equal(domain.RoomName("general"), previous)
	req.Empty(registry.MembersOf("general"))
	conn, err := registry.Lookup(id)
	req.NoError(err)
	req.Equal(domain.NoRoom, conn.Room)
}

func TestRegistry_SetRoom_Unknown_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	_, err := registry.SetRoom("ghost", "general")

	req.ErrorIs(err, errors.ErrUnknownConnection)
	req.Empty(registry.MembersOf("general"))
}

func TestRegistry_RecipientsOf_Resolves_Sinks(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first, second, third := domain.NewConnectionID(), domain.NewConnectionID(), domain.NewConnectionID()
	req.NoError(registry.Register(first, alice(), Sink{name: "first"}))
	req.NoError(registry.Register(second, alice(), Sink{name: "second"}))
	req.NoError(registry.Register(third, alice(), Sink{name: "third"}))

	// Given two connections in "general" and one in "random"
	_, _ = registry.SetRoom(first, "general")
	_, _ = registry.SetRoom(second, "general")
	_, _ = registry.SetRoom(third, "random")

	// When recipients of "general" are resolved
	recipients := registry.RecipientsOf("general")

	// Then only its members are returned
	req.Len(recipients, 2)
	names := lo.Map(recipients, func(r contract.Recipient, _ int) string { return r.Sink.(Sink).name })
	req.ElementsMatch([]string{"first", "second"}, names)
	req.ElementsMatch([]domain.ConnectionID{first, second}, lo.Map(recipients, func(r contract.Recipient, _ int) domain.ConnectionID { return r.ID }))
}

func TestRegistry_IsCurrent_Tracks_Membership_Changes(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	id := domain.NewConnectionID()
	req.NoError(registry.Register(id, alice(), Sink{}))
	_, _ = registry.SetRoom(id, "general")

	// Given a recipient resolved while in "general"
	resolved := registry.RecipientsOf("general")
	req.Len(resolved, 1)
	req.True(registry.IsCurrent(resolved[0]))

	// When the connection leaves and rejoins the same room
	_, _ = registry.SetRoom(id, domain.NoRoom)
	_, _ = registry.SetRoom(id, "general")

	// Then the old snapshot is stale and a fresh one is current
	req.False(registry.IsCurrent(resolved[0]))
	req.True(registry.IsCurrent(registry.RecipientsOf("general")[0]))

	// And nothing is current once unregistered
	fresh := registry.RecipientsOf("general")[0]
	_, _ = registry.Unregister(id)
	req.False(registry.IsCurrent(fresh))
}

func TestRegistry_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	first, second := domain.NewConnectionID(), domain.NewConnectionID()
	req.NoError(registry.Register(first, alice(), Sink{}))
	req.NoError(registry.Register(second, alice(), Sink{}))
	_, _ = registry.SetRoom(first, "general")
	_, _ = registry.SetRoom(second, "general")

	// When one connection unregisters
	room, err := registry.Unregister(first)

	// Then only the other one is left in the room
	req.NoError(err)
	req.Equal(domain.RoomName("general"), room)
	req.Equal([]domain.ConnectionID{second}, registry.MembersOf("general"))
	_, err = registry.Lookup(first)
	req.ErrorIs(err, errors.ErrUnknownConnection)

	// And unregistering twice fails
	_, err = registry.Unregister(first)
	req.ErrorIs(err, errors.ErrUnknownConnection)
}

func TestRegistry_Concurrent_SetRoom_Keeps_One_Room_Per_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	rooms := []domain.RoomName{"a", "b", "c", "d"}
	ids := make([]domain.ConnectionID, 50)
	for i := range ids {
		ids[i] = domain.NewConnectionID()
		req.NoError(registry.Register(ids[i], alice(), Sink{}))
	}

	// When every connection hops between rooms concurrently
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.ConnectionID) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, err := registry.SetRoom(id, rooms[(i+j)%len(rooms)])
				if err != nil {
					panic(fmt.Sprintf("set room: %v", err))
				}
			}
		}(i, id)
	}
	wg.Wait()

	// Then each connection appears in exactly the room it reports
	seen := make(map[domain.ConnectionID]int)
	for _, room := range rooms {
		for _, id := range registry.MembersOf(room) {
			seen[id]++
			conn, err := registry.Lookup(id)
			req.NoError(err)
			req.Equal(room, conn.Room)
		}
	}
	req.Len(seen, len(ids))
	for _, count := range seen {
		req.Equal(1, count)
	}
}
