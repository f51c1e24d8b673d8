package httpapi

import (
	"chat-relay/auth"
	"chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"time"
)

// Handler serves the account endpoints and shares the JSON helpers with the
// upload handler.
type Handler struct {
	log           *slog.Logger
	authService   services.IAuthService
	tokenDuration time.Duration
	secureCookie  bool
}

func NewHandler(log *slog.Logger, authService services.IAuthService, tokenDuration time.Duration, secureCookie bool) *Handler {
	return &Handler{
		log:           log,
		authService:   authService,
		tokenDuration: tokenDuration,
		secureCookie:  secureCookie,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Message  string `json:"message"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("Response write failed", "error", err)
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps err to its status code. Internal details never reach the client.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	h.Error(w, status, publicMessage(err, status))
}

func publicMessage(err error, status int) string {
	switch {
	case goerrors.Is(err, errors.ErrInvalidCredentials):
		return "Invalid credentials"
	case goerrors.Is(err, errors.ErrUserAlreadyExists):
		return "Username already exists"
	case goerrors.Is(err, errors.ErrInvalidPassword):
		return err.Error()
	case goerrors.Is(err, errors.ErrUnsupportedMedia):
		return "Invalid file type"
	case goerrors.Is(err, errors.ErrFileTooLarge):
		return "File too large"
	case goerrors.Is(err, errors.ErrAuthentication):
		return "Unauthorized"
	}
	return http.StatusText(status)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.authService.Register(req.Username, req.Password)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.setSession(w, session.Token)
	h.JSON(w, http.StatusOK, sessionResponse{
		Message:  "Registration successful",
		UserID:   session.Principal.UserID,
		Username: session.Principal.DisplayName,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.setSession(w, session.Token)
	h.JSON(w, http.StatusOK, sessionResponse{
		Message:  "Login successful",
		UserID:   session.Principal.UserID,
		Username: session.Principal.DisplayName,
	})
}

// Logout expires the session cookie. Tokens are stateless, so a bearer token
// stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	h.JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenDuration.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
