// Package domain contains core concepts of the chat relay.
// This file defines Message records and the rules a draft must satisfy
// before it can be persisted. Messages are immutable once stored.
package domain

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Attachment describes a file already stored by the upload handler.
type Attachment struct {
	URL         string `validate:"required,max=2048"`
	DisplayName string `validate:"required,max=255"`
	MIMEType    string `validate:"required,max=255"`
}

// Message represents an immutable, persisted chat message.
type Message struct {
	ID         uuid.UUID // assigned by the store
	SenderID   string
	SenderName string
	Room       RoomName
	Content    string
	Attachment *Attachment
	CreatedAt  time.Time // assigned by the store
}

// Draft is a message that has not been persisted yet.
type Draft struct {
	Sender     Principal
	Room       RoomName
	Content    string
	Attachment *Attachment
}

// NewDraft trims the content and validates the result.
func NewDraft(sender Principal, room RoomName, content string, attachment *Attachment, maxContentLength int) (Draft, error) {
	draft := Draft{
		Sender:     sender,
		Room:       room,
		Content:    strings.TrimSpace(content),
		Attachment: attachment,
	}
	if maxContentLength > 0 && utf8.RuneCountInString(draft.Content) > maxContentLength {
		return Draft{}, fmt.Errorf("%w: content longer than %d characters", errors.ErrValidation, maxContentLength)
	}
	if err := draft.Validate(); err != nil {
		return Draft{}, err
	}
	return draft, nil
}

// Validate checks the invariants every stored message must hold: a sender,
// a room, and at least one of content or attachment.
func (d Draft) Validate() error {
	if d.Sender.UserID == "" {
		return fmt.Errorf("%w: sender is required", errors.ErrValidation)
	}
	if err := d.Room.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Content) == "" && d.Attachment == nil {
		return fmt.Errorf("%w: content or attachment is required", errors.ErrValidation)
	}
	if d.Attachment != nil {
		if err := validate.Struct(d.Attachment); err != nil {
			return fmt.Errorf("%w: attachment: %v", errors.ErrValidation, err)
		}
	}
	return nil
}
