// Package service composes the domain packages into the operations the API
// layer calls: each facade enforces permissions, talks to exactly the
// repositories and stores its operation needs, and publishes to the bus
// when a durable write should fan out to live connections.
package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/message"
	"github.com/ourchat/ourchat-server/internal/rbac"
	"github.com/ourchat/ourchat-server/internal/session"
)

// MessageService implements send_msg / fetch_msgs / recall_msg.
type MessageService struct {
	messages   message.Repository
	sessions   session.Repository
	moderation *session.ModerationStore
	resolver   *rbac.CachedResolver
	publisher  *bus.Publisher
	sessionSvc *SessionService // for the E2EE room-key rotation-on-send trigger, §4.4
	log        zerolog.Logger
}

func NewMessageService(
	messages message.Repository,
	sessions session.Repository,
	moderation *session.ModerationStore,
	resolver *rbac.CachedResolver,
	publisher *bus.Publisher,
	sessionSvc *SessionService,
	logger zerolog.Logger,
) *MessageService {
	return &MessageService{
		messages:   messages,
		sessions:   sessions,
		moderation: moderation,
		resolver:   resolver,
		publisher:  publisher,
		sessionSvc: sessionSvc,
		log:        logger,
	}
}

// SendParams groups the inputs for appending and fanning out one message.
type SendParams struct {
	SenderID    ids.UserId
	SessionID   *ids.SessionId // nil for a direct message
	RecipientID *ids.UserId    // set for a direct message, ignored otherwise
	Type        message.RespondEventType
	Data        json.RawMessage
	IsEncrypted bool
	IsAllUser   bool
}

// Send validates the payload, checks send permission and moderation state
// for session messages, appends the durable row, and publishes it to the
// bus for live delivery.
func (s *MessageService) Send(ctx context.Context, p SendParams) (*message.Message, error) {
	if err := message.ValidatePayload(p.Data); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInvalidArgument, "message payload must be non-empty, valid JSON", err)
	}

	var sess *session.Session
	if p.SessionID != nil {
		banned, err := s.moderation.IsBanned(ctx, *p.SessionID, p.SenderID)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInternal, "check ban state", err)
		}
		if banned {
			return nil, apierrors.New(apierrors.CodePermissionDenied, "user is banned from this session")
		}
		muted, err := s.moderation.IsMuted(ctx, *p.SessionID, p.SenderID)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInternal, "check mute state", err)
		}
		if muted {
			return nil, apierrors.New(apierrors.CodePermissionDenied, "user is muted in this session")
		}
		allowed, err := s.resolver.HasPermission(ctx, p.SenderID, *p.SessionID, rbac.PermSendMessage)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInternal, "resolve send permission", err)
		}
		if !allowed {
			return nil, apierrors.New(apierrors.CodePermissionDenied, "missing send_msg permission in this session")
		}

		sess, err = s.sessions.GetByID(ctx, *p.SessionID)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CodeInternal, "load session for send", err)
		}
		if p.IsEncrypted && !sess.IsEncrypted {
			return nil, apierrors.New(apierrors.CodeFailedPrecondition, "session is not end-to-end encrypted")
		}
	}

	msg, err := s.messages.Create(ctx, message.CreateParams{
		Type:        p.Type,
		Data:        p.Data,
		SenderID:    &p.SenderID,
		SessionID:   p.SessionID,
		RecipientID: p.RecipientID,
		IsEncrypted: p.IsEncrypted,
		IsAllUser:   p.IsAllUser,
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "append message", err)
	}

	msgID := int64(msg.ID)
	env := bus.Envelope{Type: string(msg.Type), Data: msg.Data, MessageID: &msgID, IsAllUser: msg.IsAllUser}
	if p.SessionID != nil {
		sid := int64(*p.SessionID)
		env.SessionID = &sid
	}
	if p.RecipientID != nil {
		rid := int64(*p.RecipientID)
		env.RecipientID = &rid
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.log.Error().Err(err).Int64("message_id", int64(msg.ID)).Msg("failed to publish message to bus")
	}

	if sess != nil && sess.IsEncrypted && s.sessionSvc != nil {
		s.sessionSvc.RotateIfDue(ctx, *p.SessionID, p.SenderID)
	}

	return msg, nil
}

// Fetch returns up to limit messages after the given cursor, restricted to
// a session (when sessionID is set) or to the recipient's direct/broadcast
// messages otherwise.
func (s *MessageService) Fetch(ctx context.Context, sessionID *ids.SessionId, recipientID ids.UserId, after ids.MessageId, limit int) ([]message.Message, error) {
	if sessionID != nil {
		if _, err := s.sessions.GetMember(ctx, *sessionID, recipientID); err != nil {
			if err == session.ErrMemberNotFound {
				return nil, apierrors.New(apierrors.CodePermissionDenied, "not a member of this session")
			}
			return nil, apierrors.Wrap(apierrors.CodeInternal, "check session membership", err)
		}
	}
	msgs, err := s.messages.ListAfter(ctx, sessionID, recipientID, after, message.ClampLimit(limit))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "fetch messages", err)
	}
	return msgs, nil
}

// FetchForUser returns up to limit messages after the given cursor, across
// every session the recipient belongs to plus their direct and broadcast
// messages. This backs fetch_msgs's historical replay phase, which spans
// the recipient's whole visible history rather than one session.
func (s *MessageService) FetchForUser(ctx context.Context, recipientID ids.UserId, after ids.MessageId, limit int) ([]message.Message, error) {
	sessionIDs, err := s.sessions.ListSessionsForUser(ctx, recipientID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "list sessions for user", err)
	}
	msgs, err := s.messages.ListForUser(ctx, recipientID, sessionIDs, after, message.ClampLimit(limit))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "fetch messages for user", err)
	}
	return msgs, nil
}

// SessionsForUser returns every session a user currently belongs to, used
// by the gateway to filter the live bus feed to a connection's sessions
// once fetch_msgs's replay phase completes.
func (s *MessageService) SessionsForUser(ctx context.Context, userID ids.UserId) ([]ids.SessionId, error) {
	sessionIDs, err := s.sessions.ListSessionsForUser(ctx, userID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "list sessions for user", err)
	}
	return sessionIDs, nil
}

// Recall tombstones a message, either as its sender or as a session admin
// holding PermRecallOthersMessage.
func (s *MessageService) Recall(ctx context.Context, requesterID ids.UserId, id ids.MessageId) error {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if err == message.ErrNotFound {
			return apierrors.New(apierrors.CodeNotFound, "message not found")
		}
		return apierrors.Wrap(apierrors.CodeInternal, "load message for recall", err)
	}

	isAdmin := false
	if msg.SessionID != nil && (msg.SenderID == nil || *msg.SenderID != requesterID) {
		var err error
		isAdmin, err = s.resolver.HasPermission(ctx, requesterID, *msg.SessionID, rbac.PermRecallOthersMessage)
		if err != nil {
			return apierrors.Wrap(apierrors.CodeInternal, "resolve recall permission", err)
		}
	}

	if err := s.messages.Recall(ctx, id, requesterID, isAdmin); err != nil {
		switch err {
		case message.ErrNotSender:
			return apierrors.New(apierrors.CodePermissionDenied, "only the sender or a session admin may recall this message")
		case message.ErrAlreadyRecalled:
			return apierrors.New(apierrors.CodeFailedPrecondition, "message has already been recalled")
		case message.ErrNotFound:
			return apierrors.New(apierrors.CodeNotFound, "message not found")
		default:
			return apierrors.Wrap(apierrors.CodeInternal, "recall message", err)
		}
	}

	recallNotice, _ := json.Marshal(map[string]int64{"message_id": int64(id)})
	recalledID := int64(id)
	env := bus.Envelope{Type: string(message.EventRecall), Data: recallNotice, MessageID: &recalledID, IsAllUser: msg.IsAllUser}
	if msg.SessionID != nil {
		sid := int64(*msg.SessionID)
		env.SessionID = &sid
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.log.Error().Err(err).Int64("message_id", int64(id)).Msg("failed to publish recall notice")
	}
	return nil
}
