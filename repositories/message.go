//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultHistoryLimit is the number of messages replayed on join.
const DefaultHistoryLimit = 50

type IMessageRepository interface {
	Append(ctx context.Context, draft domain.Draft) (domain.Message, error)
	RecentHistory(ctx context.Context, room domain.RoomName, limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger

	mu     sync.Mutex
	last   time.Time
	seeded map[domain.RoomName]struct{} // rooms whose newest stored key raised last
	now    func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log, now: time.Now, seeded: make(map[domain.RoomName]struct{})}
}

// Append validates and persists a message, assigning its ID and timestamp.
// The key is formatted as "msg:{hex(room)}:{timestamp_padded}:{uuid}" to:
//  1. Keep rooms in disjoint key ranges whatever characters their names hold.
//  2. Sort chronologically using 19-digit zero padding (lexicographical order).
//  3. Use the UUID as a tie breaker if two keys ever share a timestamp.
func (m *MessageRepository) Append(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	if err := draft.Validate(); err != nil {
		return domain.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}

	createdAt, err := m.nextTimestamp(draft.Room)
	if err != nil {
		m.log.Error("Newest message of room not read", "room", draft.Room, "error", err)
		return domain.Message{}, fmt.Errorf("%w: read newest key of %q: %w", errors.ErrStorage, draft.Room, err)
	}
	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   draft.Sender.UserID,
		SenderName: draft.Sender.DisplayName,
		Room:       draft.Room,
		Content:    draft.Content,
		Attachment: draft.Attachment,
		CreatedAt:  createdAt,
	}
	key := messageKey(message)
	timer := prometheus.NewTimer(observability.StorageLatency.WithLabelValues("append"))
	defer timer.ObserveDuration()
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeMessage(message))
	})
	if err != nil {
		m.log.Error("Message not stored", "room", message.Room, "error", err)
		return domain.Message{}, fmt.Errorf("%w: store message: %w", errors.ErrStorage, err)
	}
	return message, nil
}

// RecentHistory returns up to limit most recent messages of a room, oldest
// first. The scan walks the room prefix backwards from its newest key and
// stops as soon as limit messages are collected.
func (m *MessageRepository) RecentHistory(ctx context.Context, room domain.RoomName, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	prefix := roomPrefix(room)
	messages := make([]domain.Message, 0, limit)
	timer := prometheus.NewTimer(observability.StorageLatency.WithLabelValues("recent_history"))
	defer timer.ObserveDuration()

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Every key of the room sorts before prefix+0xff
		seekKey := append(slices.Clone(prefix), 0xff)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read history of %q: %w", errors.ErrStorage, room, err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// nextTimestamp keeps CreatedAt strictly increasing for this store even if
// the wall clock stalls or steps backwards, across restarts included: the
// first append to a room in this process starts after the room's newest
// stored key.
func (m *MessageRepository) nextTimestamp(room domain.RoomName) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seeded[room]; !ok {
		newest, err := m.newestTimestamp(room)
		if err != nil {
			return time.Time{}, err
		}
		if newest.After(m.last) {
			m.last = newest
		}
		m.seeded[room] = struct{}{}
	}

	at := m.now().Round(0).UTC()
	if !at.After(m.last) {
		at = m.last.Add(time.Nanosecond)
	}
	m.last = at
	return at, nil
}

// newestTimestamp reads the timestamp of the room's newest key, or the zero
// time for an empty room. Only keys are iterated.
func (m *MessageRepository) newestTimestamp(room domain.RoomName) (time.Time, error) {
	prefix := roomPrefix(room)
	var newest time.Time
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		it.Seek(append(slices.Clone(prefix), 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		at, err := keyTimestamp(it.Item().Key(), prefix)
		if err != nil {
			return err
		}
		newest = at
		return nil
	})
	return newest, err
}

func roomPrefix(room domain.RoomName) []byte {
	return []byte("msg:" + hex.EncodeToString([]byte(room)) + ":")
}

func messageKey(message domain.Message) []byte {
	return fmt.Appendf(roomPrefix(message.Room), "%019d:%s",
		message.CreatedAt.UnixNano(),
		message.ID,
	)
}

// keyTimestamp parses the zero padded timestamp that follows prefix.
func keyTimestamp(key, prefix []byte) (time.Time, error) {
	rest := key[len(prefix):]
	if len(rest) < 19 {
		return time.Time{}, fmt.Errorf("malformed message key %q", key)
	}
	nanos, err := strconv.ParseInt(string(rest[:19]), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed message key %q: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}
