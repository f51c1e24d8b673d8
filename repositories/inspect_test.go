package repositories

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ScanRecords_Describes_Room_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := openDB(t)
	defer db.Close()
	messages := NewMessageRepository(db, slog.Default())
	users := NewUserRepository(db)

	// Given two rooms and one account
	_, err := messages.Append(ctx, draft(alice, "general", "hello"))
	req.NoError(err)
	_, err = messages.Append(ctx, domain.Draft{
		Sender:     bob,
		Room:       "general",
		Attachment: &domain.Attachment{URL: "/uploads/1-2-cat.png", DisplayName: "cat.png", MIMEType: "image/png"},
	})
	req.NoError(err)
	_, err = messages.Append(ctx, draft(alice, "random", "elsewhere"))
	req.NoError(err)
	_, err = users.CreateUser("carol", "$argon2id$hash")
	req.NoError(err)

	// When the "general" prefix is scanned
	var records []Record
	err = ScanRecords(db, RoomPrefix("general"), func(r Record) error {
		records = append(records, r)
		return nil
	})

	// Then only its messages come back, in order
	req.NoError(err)
	req.Len(records, 2)
	req.Equal("MESSAGE", records[0].Kind)
	req.Equal("alice", records[0].Owner)
	req.Equal("hello", records[0].Detail)
	req.Equal("[image/png /uploads/1-2-cat.png]", records[1].Detail)
	req.True(records[0].At.Before(records[1].At))

	// And users never expose their hash
	var accounts []Record
	req.NoError(ScanRecords(db, UserPrefix, func(r Record) error {
		accounts = append(accounts, r)
		return nil
	}))
	req.Len(accounts, 1)
	req.Equal("carol", accounts[0].Owner)
	req.False(strings.Contains(accounts[0].Detail, "argon2id"))
}

func Test_DescribeRecord_Unknown_Key(t *testing.T) {
	record, err := DescribeRecord("other:key", []byte{1, 2, 3})

	require.NoError(t, err)
	require.Equal(t, "UNKNOWN", record.Kind)
	require.Equal(t, "3 bytes", record.Detail)
}
