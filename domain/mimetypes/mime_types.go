package mimetypes

import "mime"

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF    MIME = "application/pdf"
	ApplicationMSWord MIME = "application/msword"
	ApplicationDOCX   MIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
)

// Attachments lists the media types accepted as message attachments.
var Attachments = []MIME{
	ImageJPEG,
	ImagePNG,
	ImageGIF,
	ApplicationPDF,
	ApplicationMSWord,
	ApplicationDOCX,
	TextPlain,
}

// Matches reports whether the detected media type, parameters stripped,
// equals the expected one.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Allowed returns the canonical attachment type for detected, if any.
func Allowed(detected string) (MIME, bool) {
	for _, candidate := range Attachments {
		if m, ok := Matches(detected, candidate); ok {
			return m, true
		}
	}
	return Unknown, false
}
