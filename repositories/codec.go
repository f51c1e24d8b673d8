package repositories

import (
	"chat-relay/domain"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the persisted records. Never renumber an existing field.
const (
	messageFieldID         protowire.Number = 1
	messageFieldSenderID   protowire.Number = 2
	messageFieldSenderName protowire.Number = 3
	messageFieldRoom       protowire.Number = 4
	messageFieldContent    protowire.Number = 5
	messageFieldAttachment protowire.Number = 6
	messageFieldCreatedAt  protowire.Number = 7

	attachmentFieldURL         protowire.Number = 1
	attachmentFieldDisplayName protowire.Number = 2
	attachmentFieldMIMEType    protowire.Number = 3

	userFieldID           protowire.Number = 1
	userFieldUsername     protowire.Number = 2
	userFieldPasswordHash protowire.Number = 3
	userFieldCreatedAt    protowire.Number = 4
)

func encodeMessage(message domain.Message) []byte {
	var b []byte
	b = appendString(b, messageFieldID, message.ID.String())
	b = appendString(b, messageFieldSenderID, message.SenderID)
	b = appendString(b, messageFieldSenderName, message.SenderName)
	b = appendString(b, messageFieldRoom, string(message.Room))
	b = appendString(b, messageFieldContent, message.Content)
	if message.Attachment != nil {
		var a []byte
		a = appendString(a, attachmentFieldURL, message.Attachment.URL)
		a = appendString(a, attachmentFieldDisplayName, message.Attachment.DisplayName)
		a = appendString(a, attachmentFieldMIMEType, message.Attachment.MIMEType)
		b = protowire.AppendTag(b, messageFieldAttachment, protowire.BytesType)
		b = protowire.AppendBytes(b, a)
	}
	return appendTime(b, messageFieldCreatedAt, message.CreatedAt)
}

func decodeMessage(b []byte) (domain.Message, error) {
	var message domain.Message
	var id string
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ == protowire.VarintType && num == messageFieldCreatedAt {
			at, n := consumeTime(b)
			message.CreatedAt = at
			return n
		}
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		switch num {
		case messageFieldAttachment:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			attachment, err := decodeAttachment(raw)
			if err != nil {
				return -1
			}
			message.Attachment = &attachment
			return n
		case messageFieldID:
			return consumeString(b, &id)
		case messageFieldSenderID:
			return consumeString(b, &message.SenderID)
		case messageFieldSenderName:
			return consumeString(b, &message.SenderName)
		case messageFieldRoom:
			var room string
			n := consumeString(b, &room)
			message.Room = domain.RoomName(room)
			return n
		case messageFieldContent:
			return consumeString(b, &message.Content)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message id %q: %w", id, err)
	}
	message.ID = parsedID
	return message, nil
}

func decodeAttachment(b []byte) (domain.Attachment, error) {
	var attachment domain.Attachment
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		switch num {
		case attachmentFieldURL:
			return consumeString(b, &attachment.URL)
		case attachmentFieldDisplayName:
			return consumeString(b, &attachment.DisplayName)
		case attachmentFieldMIMEType:
			return consumeString(b, &attachment.MIMEType)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return attachment, err
}

func encodeUser(user User) []byte {
	var b []byte
	b = appendString(b, userFieldID, user.ID)
	b = appendString(b, userFieldUsername, user.Username)
	b = appendString(b, userFieldPasswordHash, user.PasswordHash)
	return appendTime(b, userFieldCreatedAt, user.CreatedAt)
}

func decodeUser(b []byte) (User, error) {
	var user User
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == userFieldCreatedAt && typ == protowire.VarintType:
			at, n := consumeTime(b)
			user.CreatedAt = at
			return n
		case num == userFieldID && typ == protowire.BytesType:
			return consumeString(b, &user.ID)
		case num == userFieldUsername && typ == protowire.BytesType:
			return consumeString(b, &user.Username)
		case num == userFieldPasswordHash && typ == protowire.BytesType:
			return consumeString(b, &user.PasswordHash)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

// consumeFields walks every field of a record. visit receives the bytes
// following the tag and returns how many it consumed, or a negative
// protowire error code.
func consumeFields(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n = visit(num, typ, b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(t.UnixNano()))
}

func consumeString(b []byte, dst *string) int {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func consumeTime(b []byte) (time.Time, int) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return time.Time{}, n
	}
	return time.Unix(0, int64(v)).UTC(), n
}
