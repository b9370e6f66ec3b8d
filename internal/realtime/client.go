package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/xid"

	"github.com/sakif/voteboard/internal/model"
)

const (
	sendQueueSize = 16
	writeTimeout  = 10 * time.Second
	maxFrameBytes = 4096
)

// Dispatcher handles one decoded inbound frame.
type Dispatcher func(ctx context.Context, c *Client, msg model.InboundMessage)

// Client is one connected viewer.
type Client struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient wraps an accepted connection. It is not registered yet.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	conn.SetReadLimit(maxFrameBytes)
	return &Client{
		ID:   xid.New().String(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// WritePump copies queued messages to the connection. It returns, closing
// the connection, once the hub closes the queue or ctx is done.
func (c *Client) WritePump(ctx context.Context) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.hub.logger.Debug("realtime write failed",
					slog.String("client_id", c.ID),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// ReadPump reads frames until the connection ends, handing each decoded
// frame to dispatch. Frames that are not an {"event","data"} object get an
// error event back.
func (c *Client) ReadPump(ctx context.Context, dispatch Dispatcher) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				c.hub.logger.Debug("realtime client disconnected", slog.String("client_id", c.ID))
			} else {
				c.hub.logger.Debug("realtime read ended",
					slog.String("client_id", c.ID),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg model.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.hub.Send(ctx, c, model.Event{
				Name: model.EventError,
				Data: model.ErrorInfo{Message: "frames must be JSON objects with an \"event\" field"},
			})
			continue
		}
		dispatch(ctx, c, msg)
	}
}
