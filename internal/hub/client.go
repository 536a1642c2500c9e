package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wookja-0/messenger-service/internal/dto"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the first join frame to arrive after the upgrade.
	joinWait = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Per-connection send buffer. A receiver this far behind is treated as
	// failed and torn down.
	sendBufferSize = 256
)

// SessionHandler implements the business side of the room session protocol.
// The client state machine calls it exactly once per inbound event; Leave is
// additionally invoked on teardown.
type SessionHandler interface {
	// Join validates and executes the join request. Returned errors carry
	// the protocol error token as their message and end the session.
	Join(ctx context.Context, c *Client, frame dto.InboundFrame) error

	// Message handles one chat message frame from a joined client. Errors
	// are reported to the sender inside the handler; they never end the
	// session.
	Message(ctx context.Context, c *Client, frame dto.InboundFrame)

	// Leave tears down the session's registry and presence state. It must
	// be idempotent and tolerate clients that never completed a join.
	Leave(ctx context.Context, c *Client)
}

// Client is one live connection and the session riding on it. The identity
// fields userID/username are set once when the join succeeds and read-only
// afterwards.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	handler SessionHandler

	id         string
	roomID     string
	authUserID string

	// join state, guarded by stateMu
	stateMu  sync.Mutex
	joined   bool
	userID   string
	username string

	// send is closed exactly once during teardown; sendMu serializes that
	// close against concurrent trySend calls.
	send       chan []byte
	sendMu     sync.Mutex
	sendClosed bool

	// writeDone is closed when the write pump exits, so teardown can wait
	// for queued frames to flush before the socket drops.
	writeDone chan struct{}

	teardown sync.Once
}

// NewClient wires a freshly upgraded connection to the hub. authUserID is
// the verified identity from the gateway's token middleware; the join frame
// must agree with it.
func NewClient(h *Hub, conn *websocket.Conn, handler SessionHandler, connID, roomID, authUserID string) *Client {
	return &Client{
		hub:        h,
		conn:       conn,
		handler:    handler,
		id:         connID,
		roomID:     roomID,
		authUserID: authUserID,
		send:       make(chan []byte, sendBufferSize),
		writeDone:  make(chan struct{}),
	}
}

func (c *Client) ID() string         { return c.id }
func (c *Client) RoomID() string     { return c.roomID }
func (c *Client) AuthUserID() string { return c.authUserID }

// UserID returns the joined identity, or "" before a successful join.
func (c *Client) UserID() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.userID
}

// Username returns the joined display name, or "" before a successful join.
func (c *Client) Username() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.username
}

// Joined reports whether the session completed its join.
func (c *Client) Joined() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.joined
}

// MarkJoined records the validated identity. Called by the session handler
// once, after validation and before registry insertion.
func (c *Client) MarkJoined(userID, username string) {
	c.stateMu.Lock()
	c.joined = true
	c.userID = userID
	c.username = username
	c.stateMu.Unlock()
}

// trySend queues payload for the write pump without blocking. It returns
// false when the session is torn down or the buffer is full; the caller
// decides whether that counts as a failed delivery.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Outbound returns the frames queued for delivery to this connection, in
// order. The write pump is the sole consumer at runtime.
func (c *Client) Outbound() <-chan []byte { return c.send }

// SendJSON marshals v and queues it for delivery to this client only.
func (c *Client) SendJSON(v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).WithField("conn_id", c.id).Error("Failed to marshal outbound frame")
		return false
	}
	return c.trySend(payload)
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// Teardown releases everything this connection holds: session state in the
// handler (presence, registry entry), the send channel and the socket. It
// runs exactly once no matter how many triggers fire it — read error, close
// frame, failed broadcast delivery or shutdown.
func (c *Client) Teardown() {
	c.teardown.Do(func() {
		c.handler.Leave(context.Background(), c)

		c.sendMu.Lock()
		if !c.sendClosed {
			c.sendClosed = true
			close(c.send)
		}
		c.sendMu.Unlock()

		if c.conn != nil {
			// Let the write pump flush what is already queued, a terminal
			// error frame included, before the socket drops.
			select {
			case <-c.writeDone:
			case <-time.After(writeWait):
			}
			_ = c.conn.Close()
		}
		logrus.WithFields(logrus.Fields{
			"room_id": c.roomID,
			"conn_id": c.id,
		}).Info("Session torn down")
	})
}

// ReadPump is the single outstanding read per connection. It drives the
// session state machine: the first frame must be a join, afterwards message
// frames flow until disconnect. It runs in its own goroutine.
func (c *Client) ReadPump() {
	defer c.Teardown()

	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": c.roomID,
		"conn_id": c.id,
		"user_id": c.authUserID,
	})

	c.conn.SetReadLimit(maxMessageSize)
	// Until the join completes the deadline doubles as the join timeout.
	_ = c.conn.SetReadDeadline(time.Now().Add(joinWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !c.Joined() && isTimeout(err) {
				logCtx.Warn("Timed out waiting for join frame")
				c.SendJSON(dto.NewError("protocol_error"))
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error")
			} else {
				logCtx.Debug("WebSocket connection closed")
			}
			return
		}

		var frame dto.InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logCtx.WithError(err).Warn("Malformed frame, closing session")
			c.SendJSON(dto.NewError("protocol_error"))
			return
		}

		if !c.Joined() {
			if frame.Type != dto.FrameJoin {
				logCtx.Warnf("Expected join frame, got %q", frame.Type)
				c.SendJSON(dto.NewError("protocol_error"))
				return
			}
			if err := c.handler.Join(context.Background(), c, frame); err != nil {
				c.SendJSON(dto.NewError(err.Error()))
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			continue
		}

		switch frame.Type {
		case dto.FrameMessage:
			// Handled inline so broadcasts from one session are never
			// reordered relative to each other.
			c.handler.Message(context.Background(), c, frame)
		case dto.FrameJoin:
			logCtx.Warn("Duplicate join frame, closing session")
			c.SendJSON(dto.NewError("protocol_error"))
			return
		default:
			// Forward-compatible no-op.
			logCtx.Debugf("Ignoring unrecognized frame type %q", frame.Type)
		}
	}
}

// isTimeout reports whether a read failed on an expired deadline, which
// before the join means the client never sent its join frame.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// WritePump serializes all socket writes for this connection and keeps the
// connection alive with pings. It runs in its own goroutine and exits when
// the send channel closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.WithFields(logrus.Fields{
					"room_id": c.roomID,
					"conn_id": c.id,
				}).WithError(err).Warn("Failed to write message to websocket")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
