package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomLocks_Serializes_One_Room(t *testing.T) {
	req := require.New(t)
	locks := newRoomLocks()
	counter := 0

	// When many goroutines increment under the same room lock
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("general")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	// Then no increment is lost and no entry is left behind
	req.Equal(100, counter)
	req.Equal(0, locks.size())
}

func TestRoomLocks_Rooms_Are_Independent(t *testing.T) {
	req := require.New(t)
	locks := newRoomLocks()

	// Given "general" is held
	unlockGeneral := locks.lock("general")

	// Then "random" can still be taken
	done := make(chan struct{})
	go func() {
		unlock := locks.lock("random")
		unlock()
		close(done)
	}()
	<-done

	req.Equal(1, locks.size())
	unlockGeneral()
	req.Equal(0, locks.size())
}
