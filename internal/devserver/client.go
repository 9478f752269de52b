package devserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/freelago/chatkit/internal/domain"
	"github.com/freelago/chatkit/internal/transport/ws"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// client is one authenticated websocket connection on the dev server.
type client struct {
	srv   *Server
	conn  *websocket.Conn
	party domain.Party

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(srv *Server, conn *websocket.Conn, party domain.Party) *client {
	return &client{
		srv:   srv,
		conn:  conn,
		party: party,
		send:  make(chan []byte, sendBufSize),
		done:  make(chan struct{}),
	}
}

// stop releases the pumps. The send channel is left open so concurrent
// writers never hit a closed channel; writers bail out on done instead.
func (c *client) stop() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *client) readPump() {
	defer func() {
		c.srv.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var evt ws.Event
		if err := wsjson.Read(context.Background(), c.conn, &evt); err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.srv.log.Infow("ws client disconnected", "party", c.party.ID)
			} else {
				c.srv.log.Warnw("ws read error", "party", c.party.ID, "error", err)
			}
			return
		}
		c.handleEvent(&evt)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.srv.log.Warnw("ws write error", "party", c.party.ID, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *client) handleEvent(evt *ws.Event) {
	switch evt.Type {
	case ws.EventTypeSendMessage:
		var p ws.SendPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid send_message payload")
			return
		}
		c.srv.handleSend(c, p)

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+evt.Type)
	}
}

func (c *client) sendError(code, message string) {
	evt, err := ws.NewEvent(ws.EventTypeError, ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}
