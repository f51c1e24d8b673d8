package runtime

import (
	"chat-relay/domain"
	"sync"
)

// roomLocks hands out one mutex per room. Entries are reference counted and
// removed once nobody holds or waits for them.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomName]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[domain.RoomName]*roomLock)}
}

// lock blocks until the room is free and returns its unlock function.
func (l *roomLocks) lock(room domain.RoomName) func() {
	l.mu.Lock()
	rl, ok := l.locks[room]
	if !ok {
		rl = &roomLock{}
		l.locks[room] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, room)
		}
		l.mu.Unlock()
	}
}

func (l *roomLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
