package domain

import (
	"chat-relay/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var alice = Principal{UserID: "u-alice", DisplayName: "alice"}

func TestNewDraft(t *testing.T) {
	attachment := &Attachment{URL: "/uploads/1-cat.png", DisplayName: "cat.png", MIMEType: "image/png"}
	tests := []struct {
		name       string
		sender     Principal
		room       RoomName
		content    string
		attachment *Attachment
		wantErr    bool
	}{
		{"Content only", alice, "general", "hello", nil, false},
		{"Attachment only", alice, "general", "", attachment, false},
		{"Content and attachment", alice, "general", "look", attachment, false},
		{"Neither content nor attachment", alice, "general", "", nil, true},
		{"Blank content", alice, "general", "   \n\t", nil, true},
		{"Missing room", alice, NoRoom, "hello", nil, true},
		{"Missing sender", Principal{}, "general", "hello", nil, true},
		{"Incomplete attachment", alice, "general", "", &Attachment{URL: "/uploads/x"}, true},
		{"Content too long", alice, "general", strings.Repeat("a", 11), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := NewDraft(tt.sender, tt.room, tt.content, tt.attachment, 10)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrValidation)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestNewDraft_TrimsContent(t *testing.T) {
	req := require.New(t)
	draft, err := NewDraft(alice, "general", "  hi there \n", nil, 0)
	req.NoError(err)
	req.Equal("hi there", draft.Content)
}

func TestRoomName_Validate(t *testing.T) {
	req := require.New(t)
	req.NoError(RoomName("a:b").Validate())
	req.ErrorIs(RoomName(" ").Validate(), errors.ErrValidation)
	req.ErrorIs(RoomName(strings.Repeat("r", 129)).Validate(), errors.ErrValidation)
}
