package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Principal{UserID: "u-alice", DisplayName: "alice"}
	bob   = domain.Principal{UserID: "u-bob", DisplayName: "bob"}
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	return db
}

func draft(sender domain.Principal, room domain.RoomName, content string) domain.Draft {
	return domain.Draft{Sender: sender, Room: room, Content: content}
}

func Test_Append_And_Get_Chronological_History(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())
	room := domain.RoomName("general")

	// Given an empty room
	history, err := repository.RecentHistory(ctx, room, DefaultHistoryLimit)
	req.NoError(err)
	req.Empty(history)

	// When three messages are appended
	var appended []domain.Message
	for i, sender := range []domain.Principal{alice, bob, alice} {
		message, err := repository.Append(ctx, draft(sender, room, fmt.Sprintf("message %d", i)))
		req.NoError(err)
		req.NotEqual(uuid.Nil, message.ID)
		appended = append(appended, message)
	}

	// Then history returns them oldest first, identical to what was appended
	history, err = repository.RecentHistory(ctx, room, DefaultHistoryLimit)
	req.NoError(err)
	req.Equal(appended, history)
	req.Equal("alice", history[0].SenderName)
}

func Test_History_Is_Bounded_To_Most_Recent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())
	room := domain.RoomName("busy")

	for i := 1; i <= 60; i++ {
		_, err := repository.Append(ctx, draft(alice, room, fmt.Sprintf("message %d", i)))
		req.NoError(err)
	}

	// A non-positive limit falls back to the default
	history, err := repository.RecentHistory(ctx, room, 0)
	req.NoError(err)
	req.Len(history, DefaultHistoryLimit)
	req.Equal("message 11", history[0].Content)
	req.Equal("message 60", history[49].Content)

	history, err = repository.RecentHistory(ctx, room, 3)
	req.NoError(err)
	req.Equal([]string{"message 58", "message 59", "message 60"},
		[]string{history[0].Content, history[1].Content, history[2].Content})
}

func Test_History_Never_Mixes_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())

	// Given room names where one is a textual prefix of the other
	_, err := repository.Append(ctx, draft(alice, "a", "for a"))
	req.NoError(err)
	_, err = repository.Append(ctx, draft(bob, "a:b", "for a:b"))
	req.NoError(err)
	_, err = repository.Append(ctx, draft(bob, "ab", "for ab"))
	req.NoError(err)

	history, err := repository.RecentHistory(ctx, "a", DefaultHistoryLimit)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("for a", history[0].Content)
	req.Equal(domain.RoomName("a"), history[0].Room)
}

func Test_Append_Rejects_Empty_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())

	_, err := repository.Append(ctx, draft(alice, "general", "  "))
	req.ErrorIs(err, errors.ErrValidation)

	// Nothing was persisted
	history, err := repository.RecentHistory(ctx, "general", DefaultHistoryLimit)
	req.NoError(err)
	req.Empty(history)
}

func Test_Append_Keeps_Attachment(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())

	attachment := &domain.Attachment{URL: "/uploads/1-report.pdf", DisplayName: "report.pdf", MIMEType: "application/pdf"}
	stored, err := repository.Append(ctx, domain.Draft{Sender: alice, Room: "files", Attachment: attachment})
	req.NoError(err)

	history, err := repository.RecentHistory(ctx, "files", DefaultHistoryLimit)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(stored, history[0])
	req.Equal(*attachment, *history[0].Attachment)
	req.Empty(history[0].Content)
}

func Test_CreatedAt_Is_Strictly_Increasing_When_Clock_Stalls(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	repository := NewMessageRepository(db, slog.Default())
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	repository.now = func() time.Time { return frozen }

	first, err := repository.Append(ctx, draft(alice, "general", "one"))
	req.NoError(err)
	second, err := repository.Append(ctx, draft(bob, "general", "two"))
	req.NoError(err)

	req.True(second.CreatedAt.After(first.CreatedAt))

	history, err := repository.RecentHistory(ctx, "general", DefaultHistoryLimit)
	req.NoError(err)
	req.Equal([]domain.Message{first, second}, history)
}

func Test_CreatedAt_Stays_Increasing_Across_Restart_With_Clock_Behind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Given a message stored while the clock ran ahead
	before := NewMessageRepository(db, slog.Default())
	before.now = func() time.Time { return clock.Add(10 * time.Second) }
	stored, err := before.Append(ctx, draft(alice, "general", "before-restart"))
	req.NoError(err)

	// When a new process appends with the clock set back
	after := NewMessageRepository(db, slog.Default())
	after.now = func() time.Time { return clock }
	appended, err := after.Append(ctx, draft(bob, "general", "after-restart"))
	req.NoError(err)
	other, err := after.Append(ctx, draft(bob, "random", "elsewhere"))
	req.NoError(err)

	// Then the new message still sorts after the stored one
	req.True(appended.CreatedAt.After(stored.CreatedAt))
	req.True(other.CreatedAt.After(appended.CreatedAt))
	history, err := after.RecentHistory(ctx, "general", DefaultHistoryLimit)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal([]string{"before-restart", "after-restart"}, []string{history[0].Content, history[1].Content})
}

func Test_Closed_Database_Surfaces_Storage_Error(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	repository := NewMessageRepository(db, slog.Default())
	req.NoError(db.Close())

	_, err := repository.Append(ctx, draft(alice, "general", "lost"))
	req.ErrorIs(err, errors.ErrStorage)

	_, err = repository.RecentHistory(ctx, "general", DefaultHistoryLimit)
	req.ErrorIs(err, errors.ErrStorage)
}
