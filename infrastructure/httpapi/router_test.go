package httpapi_test

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/mocks"
	"chat-relay/services"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const secret = "a-test-secret-long-enough-for-hs256"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type api struct {
	router      http.Handler
	authService *mocks.MockIAuthService
	tokens      *auth.TokenIssuer
	uploadDir   string
}

func newAPI(t *testing.T, maxBytes int64) *api {
	t.Helper()
	return newAPIWithOrigins(t, maxBytes, "http://localhost:3000")
}

func newAPIWithOrigins(t *testing.T, maxBytes int64, origins ...string) *api {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	authService := mocks.NewMockIAuthService(ctrl)
	tokens := auth.NewTokenIssuer(secret, time.Hour)
	uploadDir := t.TempDir()
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router := httpapi.NewRouter(log, authService, tokens.RequireAuth, ws, httpapi.RouterOptions{
		AllowedOrigins: origins,
		TokenDuration:  tokens.Duration(),
		UploadDir:      uploadDir,
		UploadMaxBytes: maxBytes,
	})
	return &api{router: router, authService: authService, tokens: tokens, uploadDir: uploadDir}
}

func (a *api) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *api) bearer(t *testing.T) string {
	t.Helper()
	token, err := a.tokens.GenerateToken(domain.Principal{UserID: "u-1", DisplayName: "alice"})
	require.NoError(t, err)
	return "Bearer " + token
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	return nil
}

func TestRegister_Sets_Session(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	// Given the service accepts the account
	a.authService.EXPECT().Register("alice", "Str0ng!Passw0rd").Return(services.Session{
		Principal: domain.Principal{UserID: "u-1", DisplayName: "alice"},
		Token:     "signed-token",
	}, nil)

	// When the client registers
	rec := a.do(jsonRequest("/api/register", `{"username":"alice","password":"Str0ng!Passw0rd"}`))

	// Then the session cookie and the account are returned
	req.Equal(http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	req.NotNil(cookie)
	req.Equal("signed-token", cookie.Value)
	req.True(cookie.HttpOnly)
	body := decode[map[string]string](t, rec)
	req.Equal("Registration successful", body["message"])
	req.Equal("u-1", body["userId"])
	req.Equal("alice", body["username"])
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"taken", errors.ErrUserAlreadyExists, http.StatusConflict},
		{"weak password", errors.ErrInvalidPassword, http.StatusBadRequest},
		{"storage down", errors.ErrStorage, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAPI(t, 0)
			a.authService.EXPECT().Register(gomock.Any(), gomock.Any()).Return(services.Session{}, tt.err)

			rec := a.do(jsonRequest("/api/register", `{"username":"alice","password":"x"}`))

			require.Equal(t, tt.status, rec.Code)
			require.Nil(t, sessionCookie(rec))
		})
	}
}

func TestRegister_Malformed_Body(t *testing.T) {
	a := newAPI(t, 0)

	rec := a.do(jsonRequest("/api/register", `{"username":`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_Invalid_Credentials(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)
	a.authService.EXPECT().Login("alice", "wrong").Return(services.Session{}, errors.ErrInvalidCredentials)

	rec := a.do(jsonRequest("/api/login", `{"username":"alice","password":"wrong"}`))

	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Equal("Invalid credentials", decode[map[string]string](t, rec)["error"])
}

func TestLogin_Sets_Session(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)
	a.authService.EXPECT().Login("alice", "Str0ng!Passw0rd").Return(services.Session{
		Principal: domain.Principal{UserID: "u-1", DisplayName: "alice"},
		Token:     "signed-token",
	}, nil)

	rec := a.do(jsonRequest("/api/login", `{"username":"alice","password":"Str0ng!Passw0rd"}`))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("signed-token", sessionCookie(rec).Value)
	req.Equal("Login successful", decode[map[string]string](t, rec)["message"])
}

func TestLogout_Clears_Cookie(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	rec := a.do(jsonRequest("/api/logout", ""))

	req.Equal(http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	req.NotNil(cookie)
	req.Empty(cookie.Value)
	req.Less(cookie.MaxAge, 0)
}

func TestUpload_Requires_Session(t *testing.T) {
	a := newAPI(t, 0)

	rec := a.do(uploadRequest(t, "photo.png", pngHeader))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpload_Stores_And_Serves_File(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	// Given an authenticated upload of a png with an unsafe name
	upload := uploadRequest(t, "my photo (1).png", pngHeader)
	upload.Header.Set("Authorization", a.bearer(t))

	// When it is posted
	rec := a.do(upload)

	// Then a descriptor pointing to the stored file is returned
	req.Equal(http.StatusOK, rec.Code)
	descriptor := decode[httpapi.UploadResponse](t, rec)
	req.Equal("my photo (1).png", descriptor.FileName)
	req.Equal("image/png", descriptor.FileType)
	req.True(strings.HasPrefix(descriptor.FileURL, "/uploads/"))
	req.True(strings.HasSuffix(descriptor.FileURL, "-my_photo__1_.png"))

	stored, err := os.ReadFile(filepath.Join(a.uploadDir, strings.TrimPrefix(descriptor.FileURL, "/uploads/")))
	req.NoError(err)
	req.Equal(pngHeader, stored)

	// And the file is served back
	rec = a.do(httptest.NewRequest(http.MethodGet, descriptor.FileURL, nil))
	req.Equal(http.StatusOK, rec.Code)
	served, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Equal(pngHeader, served)
}

func TestUpload_Rejects_Disallowed_Type(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	// A declared .png that is really html
	upload := uploadRequest(t, "photo.png", []byte("<html><body><script>alert(1)</script></body></html>"))
	upload.Header.Set("Authorization", a.bearer(t))

	rec := a.do(upload)

	req.Equal(http.StatusUnsupportedMediaType, rec.Code)
	entries, err := os.ReadDir(a.uploadDir)
	req.NoError(err)
	req.Empty(entries)
}

func TestUpload_Rejects_Oversize_File(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 16)

	upload := uploadRequest(t, "notes.txt", []byte(strings.Repeat("a", 1024)))
	upload.Header.Set("Authorization", a.bearer(t))

	rec := a.do(upload)

	req.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	req.Equal("File too large", decode[map[string]string](t, rec)["error"])
}

func TestUpload_Without_File(t *testing.T) {
	a := newAPI(t, 0)
	upload := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
	upload.Header.Set("Content-Type", "application/json")
	upload.Header.Set("Authorization", a.bearer(t))

	rec := a.do(upload)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No file uploaded", decode[map[string]string](t, rec)["error"])
}

func TestRouter_Operational_Routes(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	req.Equal(http.StatusOK, rec.Code)

	rec = a.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "relay_http_requests_total")

	rec = a.do(httptest.NewRequest(http.MethodGet, "/ws", nil))
	req.Equal(http.StatusTeapot, rec.Code)
}

func TestRouter_CORS_Allows_Configured_Origin(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	preflight := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := a.do(preflight)

	req.Equal("http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	req.Equal("true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_CORS_Wildcard_Never_Allows_Credentials(t *testing.T) {
	a := newAPIWithOrigins(t, 0, "*")

	preflight := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	preflight.Header.Set("Origin", "http://evil.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := a.do(preflight)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestUploads_Directory_Is_Not_Listed(t *testing.T) {
	req := require.New(t)
	a := newAPI(t, 0)

	// Given a stored upload
	upload := uploadRequest(t, "photo.png", pngHeader)
	upload.Header.Set("Authorization", a.bearer(t))
	rec := a.do(upload)
	req.Equal(http.StatusOK, rec.Code)
	fileURL := decode[httpapi.UploadResponse](t, rec).FileURL

	// When the upload directory itself is requested
	rec = a.do(httptest.NewRequest(http.MethodGet, httpapi.UploadRoute+"/", nil))

	// Then nothing is listed
	req.Equal(http.StatusNotFound, rec.Code)
	req.NotContains(rec.Body.String(), strings.TrimPrefix(fileURL, httpapi.UploadRoute+"/"))

	// And the file itself is still served
	rec = a.do(httptest.NewRequest(http.MethodGet, fileURL, nil))
	req.Equal(http.StatusOK, rec.Code)
}

func TestSafeFileName(t *testing.T) {
	at := time.Unix(0, 1700000000000000000)

	require.Equal(t, "1700000000000000000-42-a_b_c.pdf", httpapi.SafeFileName(at, 42, "a b_c.pdf"))
	require.Equal(t, "1700000000000000000-7-passwd", httpapi.SafeFileName(at, 7, "../../etc/passwd"))
	require.Equal(t, "1700000000000000000-7-r_sum_.txt", httpapi.SafeFileName(at, 7, "résumé.txt"))
}
