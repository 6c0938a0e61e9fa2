package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/identity"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/message"
	"github.com/ourchat/ourchat-server/internal/ratelimit"
	"github.com/ourchat/ourchat-server/internal/service"
)

// eventTypeOf extracts the dispatch event type out of a bus envelope's
// string-typed Type field.
func eventTypeOf(env bus.Envelope) message.RespondEventType {
	return message.RespondEventType(env.Type)
}

// Hub is the central WebSocket connection registry and event distributor.
// It registers identified clients, consumes the fan-out bus, and dispatches
// each live envelope to exactly the connections it is addressed to.
type Hub struct {
	clients map[ids.UserId]*Client
	mu      sync.RWMutex

	jwtSecret           string
	jwtIssuer           string
	heartbeatIntervalMS int
	maxConnections      int

	messages   *service.MessageService
	subscriber *bus.Subscriber
	limiter    *ratelimit.Limiter
	log        zerolog.Logger
}

// Config groups the gateway's tunable knobs, pulled from internal/config at
// wiring time.
type Config struct {
	JWTSecret           string
	JWTIssuer           string
	HeartbeatIntervalMS int
	MaxConnections      int
}

// NewHub creates a new gateway hub.
func NewHub(cfg Config, messages *service.MessageService, subscriber *bus.Subscriber, limiter *ratelimit.Limiter, logger zerolog.Logger) *Hub {
	if cfg.HeartbeatIntervalMS <= 0 {
		cfg.HeartbeatIntervalMS = 30_000
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10_000
	}
	return &Hub{
		clients:             make(map[ids.UserId]*Client),
		jwtSecret:           cfg.JWTSecret,
		jwtIssuer:           cfg.JWTIssuer,
		heartbeatIntervalMS: cfg.HeartbeatIntervalMS,
		maxConnections:      cfg.MaxConnections,
		messages:            messages,
		subscriber:          subscriber,
		limiter:             limiter,
		log:                 logger.With().Str("component", "gateway").Logger(),
	}
}

func (h *Hub) heartbeatInterval() time.Duration {
	return time.Duration(h.heartbeatIntervalMS) * time.Millisecond
}

// authenticate validates a bearer token and returns the identified user.
func (h *Hub) authenticate(token string) (ids.UserId, error) {
	claims, err := identity.ValidateAccessToken(token, h.jwtSecret, h.jwtIssuer)
	if err != nil {
		return 0, err
	}
	return ids.ParseUserId(claims.Subject)
}

// Run subscribes to the fan-out bus and dispatches envelopes to connected
// clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info().Msg("gateway hub subscribing to event bus")
	return h.subscriber.Run(ctx, func(env bus.Envelope) {
		h.handleBusEvent(ctx, env)
	})
}

// ServeWebSocket initialises a new client for an upgraded WebSocket
// connection, sends Hello, and starts its read/write pumps.
func (h *Hub) ServeWebSocket(conn *websocket.Conn) {
	client := newClient(h, conn, h.log)

	hello, err := NewHelloFrame(h.heartbeatIntervalMS)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to build hello frame")
		_ = conn.Close()
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		h.log.Debug().Err(err).Msg("failed to send hello frame")
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// register adds an identified client to the Hub. A pre-existing connection
// for the same user is displaced, matching one live connection per user.
func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxConnections {
		return ErrMaxConnections
	}

	userID := client.UserID()
	if existing, ok := h.clients[userID]; ok {
		h.log.Debug().Stringer("user_id", userID).Msg("displacing existing connection")
		existing.closeSend()
		delete(h.clients, userID)
	}

	h.clients[userID] = client
	h.log.Debug().Stringer("user_id", userID).Int("total", len(h.clients)).Msg("client registered")
	return nil
}

// unregister removes a client from the Hub.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	userID := client.UserID()
	current, ok := h.clients[userID]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, userID)
	h.mu.Unlock()

	h.limiter.Forget(userID)
	client.closeSend()
	h.log.Debug().Stringer("user_id", userID).Msg("client unregistered")
}

// streamFetchMsgs implements fetch_msgs for one client: it replays every
// message visible to the user with id > sinceID, paginated, then caches the
// user's current session membership and flips the client into streaming
// mode so handleBusEvent starts forwarding live envelopes. Hub.Run consumes
// the bus continuously but handleBusEvent only forwards to streaming
// clients, so a row appended after the last replay page but before
// streaming flips on is not forwarded live; one more replay pass from the
// cursor after the flip picks such rows up. No row is skipped, and a row
// may arrive both from that pass and live, so a caller deduplicates by
// message id.
func (h *Hub) streamFetchMsgs(c *Client, sinceID ids.MessageId) {
	ctx := context.Background()
	cursor := sinceID

	for {
		msgs, err := h.messages.FetchForUser(ctx, c.UserID(), cursor, 0)
		if err != nil {
			h.log.Warn().Err(err).Stringer("user_id", c.UserID()).Msg("fetch_msgs replay failed")
			if frame, fErr := NewErrorFrame(CloseUnknownError, "replay failed"); fErr == nil {
				c.enqueue(frame)
			}
			return
		}
		for _, msg := range msgs {
			frame, fErr := NewDispatchFrame(int64(msg.ID), msg.Type, msg.Data)
			if fErr != nil {
				h.log.Warn().Err(fErr).Msg("failed to build replay dispatch frame")
				continue
			}
			c.enqueue(frame)
			cursor = msg.ID
		}
		if len(msgs) == 0 {
			break
		}
	}

	sessionIDs, err := h.sessionsForClient(ctx, c.UserID())
	if err != nil {
		h.log.Warn().Err(err).Stringer("user_id", c.UserID()).Msg("failed to load session membership for live tail")
	}
	c.setSessions(sessionIDs)
	c.streaming.Store(true)

	for {
		msgs, err := h.messages.FetchForUser(ctx, c.UserID(), cursor, 0)
		if err != nil {
			h.log.Warn().Err(err).Stringer("user_id", c.UserID()).Msg("fetch_msgs catch-up replay failed")
			return
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			if frame, fErr := NewDispatchFrame(int64(msg.ID), msg.Type, msg.Data); fErr == nil {
				c.enqueue(frame)
			}
			cursor = msg.ID
		}
	}
}

func (h *Hub) sessionsForClient(ctx context.Context, userID ids.UserId) ([]ids.SessionId, error) {
	return h.messages.SessionsForUser(ctx, userID)
}

// handleBusEvent forwards one bus envelope to every locally connected,
// streaming client it is addressed to: broadcast (is_all_user), a direct
// recipient, or a member of the envelope's session.
func (h *Hub) handleBusEvent(_ context.Context, env bus.Envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.IsIdentified() && c.IsStreaming() {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var frame []byte
	var err error
	if env.MessageID != nil {
		frame, err = NewDispatchFrame(*env.MessageID, eventTypeOf(env), env.Data)
	} else {
		frame, err = NewDispatchFrameNoID(eventTypeOf(env), env.Data)
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to build dispatch frame")
		return
	}

	for _, c := range targets {
		switch {
		case env.IsAllUser:
			c.enqueue(frame)
		case env.RecipientID != nil && int64(c.UserID()) == *env.RecipientID:
			c.enqueue(frame)
		case env.SessionID != nil && c.memberOf(ids.SessionId(*env.SessionID)):
			c.enqueue(frame)
		}
	}
}
