package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/service"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// Client represents a single WebSocket connection.
type Client struct {
	id       string
	identity domain.Identity
	hub      *Hub
	conn     *websocket.Conn
	log      zerolog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, id string, identity domain.Identity, sendBuf int) *Client {
	c := &Client{
		id:       id,
		identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuf),
		done:     make(chan struct{}),
	}
	if hub != nil {
		c.log = hub.log.With().Str("socket_id", id).Str("user_id", string(identity.UserID)).Logger()
	} else {
		c.log = zerolog.Nop()
	}
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) UserID() domain.UserID { return c.identity.UserID }

// push queues data without blocking. A client whose buffer is full is too slow
// to keep and gets closed.
func (c *Client) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Msg("send buffer full, closing socket")
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump reads events from the WebSocket and runs each one as a hub task.
// The next event is read only after the previous task completes, so a
// client's events are handled in order.
func (c *Client) ReadPump(ctx context.Context) {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.log.Debug().Msg("ws: client disconnected")
			} else {
				c.log.Debug().Err(err).Msg("ws: read error")
			}
			return
		}

		done, err := c.hub.Submit(ctx, func() { c.handleEvent(ctx, &event) })
		if err != nil {
			return
		}
		select {
		case <-done:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("ws: write error")
				c.close()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("ws: ping error")
				c.close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.RoomID == "" {
			c.sendError("INVALID_PAYLOAD", "invalid join_room payload")
			return
		}
		if !domain.CanJoinRoom(c.identity.UserID, p.RoomID) {
			c.sendError(service.Code(service.ErrForbidden), "not a participant of room "+p.RoomID)
			return
		}
		if err := c.hub.registry.JoinRoom(c.id, p.RoomID); err != nil {
			c.sendError("INVALID_STATE", err.Error())
			return
		}
		c.log.Debug().Str("room_id", p.RoomID).Msg("ws: joined room")
		c.reply(EventTypeRoomJoined, RoomJoinedPayload{RoomID: p.RoomID})

	case EventTypeSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ReceiverID == "" {
			c.sendError("INVALID_PAYLOAD", "invalid send_message payload")
			return
		}
		res, err := c.hub.messages.Send(ctx, c.identity, service.SendInput{
			ReceiverID:   p.ReceiverID,
			Body:         p.Message,
			RoomID:       p.RoomID,
			OriginSocket: c.id,
		})
		if err != nil {
			c.sendError(service.Code(err), service.Message(err))
			return
		}
		c.reply(EventTypeMessageSent, MessageSentPayload{Message: res.Message, Delivery: res.Delivery})

	case EventTypePing:
		c.reply(EventTypePong, nil)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) reply(eventType string, payload any) {
	data, err := encodeEvent(eventType, payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", eventType).Msg("ws: marshal error")
		return
	}
	c.push(data)
}

func (c *Client) sendError(code, message string) {
	c.reply(EventTypeError, ErrorPayload{Code: code, Message: message})
}
