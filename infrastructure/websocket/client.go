// Package websocket carries relay sessions over gorilla WebSocket
// connections: one read pump feeding the relay and one write pump draining
// the connection's sink.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/sink"
	"context"
	goerrors "errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 64 * 1024
	relayCallLimit = 5 * time.Second
)

// Relay is the session protocol a client drives.
type Relay interface {
	Connect(principal domain.Principal, sink contract.EventSink) (domain.ConnectionID, error)
	Join(ctx context.Context, id domain.ConnectionID, room domain.RoomName) error
	LeaveRoom(id domain.ConnectionID, room domain.RoomName) error
	Send(ctx context.Context, id domain.ConnectionID, cmd domain.SendMessageCommand) error
	Disconnect(id domain.ConnectionID)
}

// Client is one authenticated socket.
type Client struct {
	id    domain.ConnectionID
	conn  *websocket.Conn
	sink  *sink.ConnectionSink
	relay Relay
	log   *slog.Logger
}

func newClient(id domain.ConnectionID, conn *websocket.Conn, s *sink.ConnectionSink, relay Relay, log *slog.Logger) *Client {
	conn.SetReadLimit(maxFrameBytes)
	return &Client{id: id, conn: conn, sink: s, relay: relay, log: log.With("connection", id)}
}

// readPump dispatches inbound frames until the socket fails, then
// disconnects the session.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.relay.Disconnect(c.id)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if err := c.dispatch(ctx, payload); err != nil && errors.IsFatal(err) {
			c.log.Warn("Session ended by relay", "error", err)
			return
		}
	}
}

func (c *Client) dispatch(ctx context.Context, payload []byte) error {
	frame, err := DecodeFrame(payload)
	if err != nil {
		c.reject(domain.NoRoom, "invalid frame")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, relayCallLimit)
	defer cancel()

	switch frame.Type {
	case FrameJoinRoom:
		err = c.relay.Join(callCtx, c.id, domain.RoomName(frame.Room))
		if err != nil && !errors.IsFatal(err) {
			c.reject(domain.RoomName(frame.Room), joinFailure(err))
		}
	case FrameLeaveRoom:
		err = c.relay.LeaveRoom(c.id, domain.RoomName(frame.Room))
	case FrameSendMessage:
		// The relay reports send failures to this client itself
		err = c.relay.Send(callCtx, c.id, frame.Command())
	default:
		c.reject(domain.RoomName(frame.Room), "unknown frame type")
		return nil
	}
	if err != nil {
		c.log.Debug("Frame rejected", "type", frame.Type, "error", err)
	}
	return err
}

// reject answers this client alone with a message-error frame.
func (c *Client) reject(room domain.RoomName, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.sink.Consume(ctx, event.SendFailed{Room: room, Reason: reason}); err != nil {
		c.log.Debug("Rejection not queued", "error", err)
	}
}

func joinFailure(err error) string {
	switch {
	case goerrors.Is(err, errors.ErrValidation):
		return err.Error()
	case goerrors.Is(err, errors.ErrStorage):
		return errors.ErrStorage.Error()
	default:
		return "could not join room"
	}
}

// writePump is the only writer of the socket. It stops when the sink is
// closed, either by Disconnect or because the client could not keep up.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e := <-c.sink.Events():
			if !c.write(e) {
				return
			}
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) write(e event.DomainEvent) bool {
	payload, err := EncodeEvent(e)
	if err != nil {
		c.log.Error("Event not encoded", "error", err)
		return true
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Debug("Write failed", "error", err)
		return false
	}
	return true
}

func (c *Client) logReadError(err error) {
	switch {
	case goerrors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "limit", maxFrameBytes)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		c.log.Debug("Connection closed", "error", err)
	}
}
