package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/freelago/chatkit/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256

	defaultDialTimeout = 10 * time.Second
	defaultDialRetry   = 15 * time.Second
)

var ErrChannelClosed = errors.New("channel is closed")

// Options configures a channel dial.
type Options struct {
	// OnMessage receives every inbound receive_message payload. Required.
	OnMessage func(domain.RawMessage)
	// OnClose is invoked once when the connection ends; err is nil for a
	// locally initiated Close. Optional.
	OnClose func(error)

	// DialTimeout bounds a single connect attempt.
	DialTimeout time.Duration
	// DialRetryElapsed bounds retrying of transient dial failures. There is
	// no reconnect after a connection drops; a new session must be opened.
	DialRetryElapsed time.Duration

	Log *zap.SugaredLogger
}

// Channel is one live, authenticated connection carrying message events for
// the credentialed party. Sends are fire-and-forget: no acknowledgement, no
// retry, no local persistence.
type Channel struct {
	conn *websocket.Conn
	log  *zap.SugaredLogger

	onMessage func(domain.RawMessage)
	onClose   func(error)

	send chan []byte
	done chan struct{}
	once sync.Once
}

// Dial connects to the realtime endpoint, authenticating with the bearer
// token. Transient dial failures are retried with bounded exponential
// backoff; an authentication rejection is permanent.
func Dial(ctx context.Context, endpoint, token string, opts Options) (*Channel, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	retryElapsed := opts.DialRetryElapsed
	if retryElapsed <= 0 {
		retryElapsed = defaultDialRetry
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var conn *websocket.Conn
	attempt := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		c, resp, err := websocket.Dial(dialCtx, u.String(), nil)
		if err != nil {
			if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
				return backoff.Permanent(fmt.Errorf("authentication rejected (status %d): %w", resp.StatusCode, err))
			}
			log.Debugw("ws dial attempt failed", "error", err)
			return err
		}
		conn = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = retryElapsed
	if err := backoff.Retry(attempt, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	ch := &Channel{
		conn:      conn,
		log:       log,
		onMessage: opts.OnMessage,
		onClose:   opts.OnClose,
		send:      make(chan []byte, sendBufSize),
		done:      make(chan struct{}),
	}
	go ch.readPump()
	go ch.writePump()
	return ch, nil
}

// Send emits one send_message event. It returns once the event is queued;
// delivery is not acknowledged.
func (c *Channel) Send(ctx context.Context, content string, sender domain.Party, receiverID string) error {
	evt, err := NewEvent(EventTypeSendMessage, SendPayload{
		Content:        content,
		SenderID:       sender.ID,
		ReceiverID:     receiverID,
		SenderIsFreela: sender.Kind == domain.PartyKindFreelancer,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the connection down and releases the pumps. Idempotent.
func (c *Channel) Close() {
	c.shutdown(nil)
}

func (c *Channel) shutdown(err error) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(err)
		}
	})
}

func (c *Channel) readPump() {
	for {
		var evt Event
		err := wsjson.Read(context.Background(), c.conn, &evt)
		if err != nil {
			select {
			case <-c.done:
				// Locally closed; the read failing is expected.
			default:
				if websocket.CloseStatus(err) != -1 {
					c.log.Infow("ws connection closed by server")
				} else {
					c.log.Warnw("ws read error", "error", err)
				}
			}
			c.shutdown(err)
			return
		}
		c.handleEvent(&evt)
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Warnw("ws write error", "error", err)
				c.shutdown(err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Warnw("ws ping error", "error", err)
				c.shutdown(err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Channel) handleEvent(evt *Event) {
	switch evt.Type {
	case EventTypeReceiveMessage:
		var raw domain.RawMessage
		if err := json.Unmarshal(evt.Payload, &raw); err != nil {
			c.log.Warnw("dropping undecodable receive_message event", "error", err)
			return
		}
		if c.onMessage != nil {
			c.onMessage(raw)
		}

	case EventTypeError:
		var p ErrorPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			c.log.Warnw("undecodable error event")
			return
		}
		c.log.Warnw("server error event", "code", p.Code, "message", p.Message)

	default:
		c.log.Debugw("ignoring unknown event", "type", evt.Type)
	}
}
