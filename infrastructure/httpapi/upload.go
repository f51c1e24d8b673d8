package httpapi

import (
	"chat-relay/auth"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// DefaultUploadMaxBytes caps a single attachment.
	DefaultUploadMaxBytes int64 = 5 << 20

	// UploadRoute is where stored files are served from.
	UploadRoute = "/uploads"

	// Room for the multipart envelope around the file part.
	multipartOverhead int64 = 64 << 10
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// UploadResponse is the attachment descriptor a client copies into its
// send-message frame.
type UploadResponse struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

// Uploader stores attachments on disk. Content types are sniffed from the
// bytes, the client's declared type is ignored.
type Uploader struct {
	*Handler
	dir      string
	maxBytes int64
	now      func() time.Time
}

func NewUploader(handler *Handler, dir string, maxBytes int64) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	return &Uploader{Handler: handler, dir: dir, maxBytes: maxBytes, now: time.Now}
}

func (u *Uploader) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, u.maxBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case goerrors.As(err, &tooLarge):
			u.Fail(w, r, errors.ErrFileTooLarge)
		case goerrors.Is(err, http.ErrMissingFile), goerrors.Is(err, http.ErrNotMultipart):
			u.Error(w, http.StatusBadRequest, "No file uploaded")
		default:
			u.Error(w, http.StatusBadRequest, "Invalid upload")
		}
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > u.maxBytes {
		u.Fail(w, r, errors.ErrFileTooLarge)
		return
	}

	fileType, err := sniff(file)
	if err != nil {
		u.Fail(w, r, err)
		return
	}

	stored, err := u.store(file, header)
	if err != nil {
		u.Fail(w, r, err)
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	u.log.Info("Attachment stored", "user", principal.UserID, "file", stored, "type", fileType, "size", header.Size)

	u.JSON(w, http.StatusOK, UploadResponse{
		FileURL:  path.Join(UploadRoute, stored),
		FileName: filepath.Base(header.Filename),
		FileType: string(fileType),
	})
}

// sniff detects the media type and rewinds the file.
func sniff(file multipart.File) (mimetypes.MIME, error) {
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return mimetypes.Unknown, fmt.Errorf("sniffing failed: %w", err)
	}
	fileType, ok := mimetypes.Allowed(detected.String())
	if !ok {
		return mimetypes.Unknown, fmt.Errorf("%w: %s", errors.ErrUnsupportedMedia, detected.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return mimetypes.Unknown, fmt.Errorf("rewind failed: %w", err)
	}
	return fileType, nil
}

func (u *Uploader) store(file io.Reader, header *multipart.FileHeader) (string, error) {
	name := SafeFileName(u.now(), rand.IntN(1e9), header.Filename)
	dst, err := os.OpenFile(filepath.Join(u.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return name, nil
}

// SafeFileName builds "{unixnano}-{suffix}-{name}" with every character
// outside [a-zA-Z0-9.] of the original name replaced by '_'.
func SafeFileName(at time.Time, suffix int, original string) string {
	base := unsafeFileChars.ReplaceAllString(filepath.Base(original), "_")
	return fmt.Sprintf("%d-%d-%s", at.UnixNano(), suffix, base)
}

// EnsureUploadDir creates the upload directory when missing.
func EnsureUploadDir(dir string, log *slog.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("upload dir %s: %w", dir, err)
	}
	log.Debug("Upload directory ready", "dir", dir)
	return nil
}
