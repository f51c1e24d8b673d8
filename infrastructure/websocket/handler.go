package websocket

import (
	"chat-relay/domain"
	"chat-relay/sink"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Authenticator resolves the principal of a handshake request.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Principal, error)
}

// Handler upgrades authenticated requests into relay sessions.
type Handler struct {
	log        *slog.Logger
	relay      Relay
	auth       Authenticator
	upgrader   websocket.Upgrader
	bufferSize int

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHandler(log *slog.Logger, relay Relay, auth Authenticator, origins OriginPolicy, bufferSize int) *Handler {
	return &Handler{
		log:   log,
		relay: relay,
		auth:  auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		bufferSize: bufferSize,
		clients:    make(map[*Client]struct{}),
	}
}

// ServeHTTP refuses unauthenticated handshakes with 401 before upgrading,
// so the relay never sees them. It blocks for the lifetime of the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Debug("Handshake refused", "remote_addr", r.RemoteAddr, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the request
		h.log.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	connectionSink := sink.NewConnectionSink(h.bufferSize)
	id, err := h.relay.Connect(principal, connectionSink)
	if err != nil {
		h.log.Error("Session not registered", "user", principal.UserID, "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session not registered"))
		_ = conn.Close()
		return
	}

	client := newClient(id, conn, connectionSink, h.relay, h.log)
	h.track(client)
	defer h.untrack(client)

	h.log.Info("Session opened", "connection", id, "user", principal.UserID)
	go client.writePump()
	client.readPump(r.Context())
	h.log.Info("Session closed", "connection", id, "user", principal.UserID)
}

// CloseAll ends every open session, used on shutdown since hijacked
// connections outlive http.Server.Shutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.sink.Close()
		_ = client.conn.Close()
	}
}

func (h *Handler) track(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *Handler) untrack(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}
