package domain

// SendMessageCommand carries a send intent from a connection.
// Room is optional; when set it must match the connection's current room.
type SendMessageCommand struct {
	Room       RoomName
	Content    string
	Attachment *Attachment
}
