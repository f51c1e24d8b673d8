package repositories

import (
	"chat-relay/domain"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	MessagePrefix = "msg:"
	UserPrefix    = "user:"
)

// Record is a stored entry as shown by the inspection tools.
type Record struct {
	Key    string
	Kind   string
	At     time.Time
	Owner  string
	Room   string
	Detail string
}

// RoomPrefix is the key prefix shared by every message of room.
func RoomPrefix(room string) string {
	return string(roomPrefix(domain.RoomName(room)))
}

// DescribeRecord decodes a raw entry. Password hashes never leave the store.
func DescribeRecord(key string, value []byte) (Record, error) {
	switch {
	case strings.HasPrefix(key, MessagePrefix):
		message, err := decodeMessage(value)
		if err != nil {
			return Record{}, err
		}
		detail := message.Content
		if message.Attachment != nil {
			detail = strings.TrimSpace(fmt.Sprintf("%s [%s %s]", detail, message.Attachment.MIMEType, message.Attachment.URL))
		}
		return Record{
			Key:    key,
			Kind:   "MESSAGE",
			At:     message.CreatedAt,
			Owner:  message.SenderName,
			Room:   string(message.Room),
			Detail: detail,
		}, nil
	case strings.HasPrefix(key, UserPrefix):
		user, err := decodeUser(value)
		if err != nil {
			return Record{}, err
		}
		return Record{Key: key, Kind: "USER", At: user.CreatedAt, Owner: user.Username, Detail: user.ID}, nil
	}
	return Record{Key: key, Kind: "UNKNOWN", Detail: fmt.Sprintf("%d bytes", len(value))}, nil
}

// ScanRecords visits every entry whose key starts with prefix, in key order.
func ScanRecords(db *badger.DB, prefix string, visit func(Record) error) error {
	return db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(value []byte) error {
				record, err := DescribeRecord(key, value)
				if err != nil {
					return fmt.Errorf("decode %s: %w", key, err)
				}
				return visit(record)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
