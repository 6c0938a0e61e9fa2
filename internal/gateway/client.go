package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/ids"
)

const (
	// maxMessageSize is the maximum size in bytes of a single inbound WebSocket message.
	maxMessageSize = 4096

	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// identifyTimeout is how long a client has to send Identify after connecting.
	identifyTimeout = 30 * time.Second
)

// Client represents a single WebSocket connection. It runs two goroutines
// (readPump and writePump) and communicates with the Hub via its send
// channel and callback methods.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	// done is closed to signal that the client is shutting down. The send channel is never closed directly; writePump
	// and enqueue both select on done to detect termination, avoiding send-on-closed-channel panics that would
	// otherwise occur when unregister races with dispatch.
	done      chan struct{}
	closeOnce sync.Once

	// Session state, protected by mu. Written during Identify and read by the Hub during dispatch.
	mu         sync.RWMutex
	userID     ids.UserId
	identified bool
	sessionIDs map[ids.SessionId]struct{}

	// streaming is set once fetch_msgs has attached this connection's live
	// tail; until then dispatched events are dropped since the client is
	// still draining historical replay pages on its own cursor.
	streaming atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn, logger zerolog.Logger) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
		log:  logger,
	}
}

// closeSend signals the client's write loop to stop. It is safe to call from multiple goroutines; only the first call
// has any effect.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

// UserID returns the authenticated user ID. Only meaningful once IsIdentified is true.
func (c *Client) UserID() ids.UserId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// IsIdentified returns whether the client has completed authentication.
func (c *Client) IsIdentified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

// IsStreaming returns whether the client has attached fetch_msgs's live tail.
func (c *Client) IsStreaming() bool {
	return c.streaming.Load()
}

// memberOf reports whether the client's cached session set includes sessionID.
func (c *Client) memberOf(sessionID ids.SessionId) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sessionIDs[sessionID]
	return ok
}

// setSessions replaces the client's cached session membership set, taken at
// fetch_msgs time and used to filter the live bus feed without a database
// round trip per envelope.
func (c *Client) setSessions(sessionIDs []ids.SessionId) {
	set := make(map[ids.SessionId]struct{}, len(sessionIDs))
	for _, sid := range sessionIDs {
		set[sid] = struct{}{}
	}
	c.mu.Lock()
	c.sessionIDs = set
	c.mu.Unlock()
}

// readPump reads messages from the WebSocket connection and routes them by opcode. It runs in its own goroutine and
// is responsible for closing the connection when the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	heartbeatInterval := c.hub.heartbeatInterval()
	c.conn.SetReadLimit(maxMessageSize)
	// Allow slightly more than one heartbeat interval before timing out, so a single missed heartbeat does not
	// immediately sever the connection.
	_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))

	identifyTimer := time.AfterFunc(identifyTimeout, func() {
		if !c.IsIdentified() {
			c.log.Debug().Msg("client did not identify in time")
			c.closeWithCode(CloseNotAuthenticated, "identify timeout")
		}
	})
	defer identifyTimer.Stop()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		if c.IsIdentified() && !c.hub.limiter.Allow(c.UserID()) {
			c.closeWithCode(CloseRateLimited, "rate limit exceeded")
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.closeWithCode(CloseDecodeError, "invalid JSON")
			return
		}

		switch frame.Op {
		case OpcodeHeartbeat:
			c.handleHeartbeat(heartbeatInterval)
		case OpcodeIdentify:
			identifyTimer.Stop()
			c.handleIdentify(frame.Data)
		case OpcodeFetchMsgs:
			c.handleFetchMsgs(frame.Data)
		default:
			c.closeWithCode(CloseUnknownOpcode, "unknown opcode")
			return
		}
	}
}

// writePump writes messages from the send channel to the WebSocket connection. It runs in its own goroutine and exits
// when done is closed. Any messages remaining in the send buffer are drained before returning.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handleHeartbeat responds with a HeartbeatACK and resets the read deadline.
func (c *Client) handleHeartbeat(heartbeatInterval time.Duration) {
	_ = c.conn.SetReadDeadline(time.Now().Add(heartbeatInterval + heartbeatInterval/2))

	ack, err := NewHeartbeatACKFrame()
	if err != nil {
		c.log.Error().Err(err).Msg("failed to build heartbeat ack")
		return
	}
	c.enqueue(ack)
}

// handleIdentify processes an Identify frame: validates the bearer token and registers the client.
func (c *Client) handleIdentify(data json.RawMessage) {
	if c.IsIdentified() {
		c.closeWithCode(CloseAlreadyAuthenticated, "already identified")
		return
	}

	var id identifyData
	if err := json.Unmarshal(data, &id); err != nil || id.Token == "" {
		c.closeWithCode(CloseDecodeError, "invalid identify payload")
		return
	}

	userID, err := c.hub.authenticate(id.Token)
	if err != nil {
		c.log.Debug().Err(err).Msg("identify token validation failed")
		c.closeWithCode(CloseAuthFailed, "invalid token")
		return
	}

	c.mu.Lock()
	c.userID = userID
	c.identified = true
	c.mu.Unlock()

	if err := c.hub.register(c); err != nil {
		c.log.Warn().Err(err).Msg("failed to register client")
		c.closeWithCode(CloseUnknownError, "registration failed")
		return
	}

	hello, err := NewHeartbeatACKFrame()
	if err == nil {
		c.enqueue(hello)
	}
	c.log.Info().Stringer("user_id", userID).Msg("client identified")
}

// handleFetchMsgs processes a FetchMsgs frame: replays history after the
// client's cursor, then attaches the live tail.
func (c *Client) handleFetchMsgs(data json.RawMessage) {
	if !c.IsIdentified() {
		c.closeWithCode(CloseNotAuthenticated, "not identified")
		return
	}

	var req fetchMsgsData
	if err := json.Unmarshal(data, &req); err != nil {
		c.closeWithCode(CloseDecodeError, "invalid fetch_msgs payload")
		return
	}

	go c.hub.streamFetchMsgs(c, ids.MessageId(req.SinceID))
}

// enqueue sends a message to the client's write channel. If the client has already been shut down the message is
// silently dropped. If the channel is full, the message is dropped and the connection is closed to prevent backpressure
// from stalling the Hub.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Warn().Msg("client send buffer full, closing connection")
		c.closeSend()
		_ = c.conn.Close()
	}
}

// closeWithCode sends a WebSocket close frame with the given code and reason, then closes the underlying connection.
func (c *Client) closeWithCode(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}
