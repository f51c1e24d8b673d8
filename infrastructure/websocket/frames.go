package websocket

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Frame types exchanged with the browser client.
const (
	FrameJoinRoom         = "join-room"
	FrameLeaveRoom        = "leave-room"
	FrameSendMessage      = "send-message"
	FramePreviousMessages = "previous-messages"
	FrameNewMessage       = "new-message"
	FrameMessageError     = "message-error"
)

// InboundFrame is any frame sent by a client. Fields unused by a type are
// left empty.
type InboundFrame struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Content  string `json:"content"`
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// Command turns a send-message frame into a relay command. An attachment is
// attached as soon as one file field is set, validation rejects it if the
// others are missing.
func (f InboundFrame) Command() domain.SendMessageCommand {
	cmd := domain.SendMessageCommand{Room: domain.RoomName(f.Room), Content: f.Content}
	if strings.TrimSpace(f.FileURL+f.FileName+f.FileType) != "" {
		cmd.Attachment = &domain.Attachment{URL: f.FileURL, DisplayName: f.FileName, MIMEType: f.FileType}
	}
	return cmd
}

func DecodeFrame(payload []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("invalid frame: %w", err)
	}
	return frame, nil
}

type SenderJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MessageJSON mirrors a stored message. File fields are null without
// attachment.
type MessageJSON struct {
	ID        string     `json:"id"`
	Sender    SenderJSON `json:"sender"`
	Room      string     `json:"room"`
	Content   string     `json:"content"`
	FileURL   *string    `json:"fileUrl"`
	FileName  *string    `json:"fileName"`
	FileType  *string    `json:"fileType"`
	CreatedAt time.Time  `json:"createdAt"`
}

type previousMessagesFrame struct {
	Type     string        `json:"type"`
	Room     string        `json:"room"`
	Messages []MessageJSON `json:"messages"`
}

type newMessageFrame struct {
	Type    string      `json:"type"`
	Room    string      `json:"room"`
	Message MessageJSON `json:"message"`
}

type messageErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func toMessageJSON(m domain.Message) MessageJSON {
	out := MessageJSON{
		ID:        m.ID.String(),
		Sender:    SenderJSON{ID: m.SenderID, Username: m.SenderName},
		Room:      m.Room.String(),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Attachment != nil {
		out.FileURL = lo.ToPtr(m.Attachment.URL)
		out.FileName = lo.ToPtr(m.Attachment.DisplayName)
		out.FileType = lo.ToPtr(m.Attachment.MIMEType)
	}
	return out
}

// EncodeEvent renders a relay event as the frame the client expects.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	switch evt := e.(type) {
	case event.History:
		return json.Marshal(previousMessagesFrame{
			Type:     FramePreviousMessages,
			Room:     evt.Room.String(),
			Messages: lo.Map(evt.Messages, func(m domain.Message, _ int) MessageJSON { return toMessageJSON(m) }),
		})
	case event.MessageBroadcast:
		return json.Marshal(newMessageFrame{
			Type:    FrameNewMessage,
			Room:    evt.Room.String(),
			Message: toMessageJSON(evt.Message),
		})
	case event.SendFailed:
		return json.Marshal(messageErrorFrame{Type: FrameMessageError, Error: evt.Reason})
	default:
		return nil, fmt.Errorf("unsupported event %T", e)
	}
}
