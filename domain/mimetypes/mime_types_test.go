package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		detected string
		expected MIME
		want     bool
	}{
		{"Plain text with charset", "text/plain; charset=utf-8", TextPlain, true},
		{"PDF", "application/pdf", ApplicationPDF, true},
		{"DOCX", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ApplicationDOCX, true},
		{"PNG", "image/png", ImagePNG, true},
		{"JPEG", "image/jpeg", ImageJPEG, true},
		{"Mismatch", "text/plain; charset=utf-8", ImagePNG, false},
		{"Invalid MIME", "not a mime", TextPlain, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Matches(tt.detected, tt.expected)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestAllowed(t *testing.T) {
	req := require.New(t)

	m, ok := Allowed("image/gif")
	req.True(ok)
	req.Equal(ImageGIF, m)

	m, ok = Allowed("text/plain; charset=utf-8")
	req.True(ok)
	req.Equal(TextPlain, m)

	m, ok = Allowed("application/x-msdownload")
	req.False(ok)
	req.Equal(Unknown, m)
}
