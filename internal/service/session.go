package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/message"
	"github.com/ourchat/ourchat-server/internal/rbac"
	"github.com/ourchat/ourchat-server/internal/session"
	"github.com/ourchat/ourchat-server/internal/user"
)

// SessionService implements session creation, membership, moderation, role
// management, metadata, and E2EE room-key rotation.
type SessionService struct {
	sessions    session.Repository
	roles       *session.RoleRepository
	moderation  *session.ModerationStore
	resolver    *rbac.CachedResolver
	messages    message.Repository
	users       user.Repository
	publisher   *bus.Publisher
	rotationTTL time.Duration
	log         zerolog.Logger
}

func NewSessionService(
	sessions session.Repository,
	roles *session.RoleRepository,
	moderation *session.ModerationStore,
	resolver *rbac.CachedResolver,
	messages message.Repository,
	users user.Repository,
	publisher *bus.Publisher,
	rotationTTL time.Duration,
	logger zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		roles:       roles,
		moderation:  moderation,
		resolver:    resolver,
		messages:    messages,
		users:       users,
		publisher:   publisher,
		rotationTTL: rotationTTL,
		log:         logger,
	}
}

// Create makes a new session owned by ownerID.
func (s *SessionService) Create(ctx context.Context, p session.CreateParams) (ids.SessionId, error) {
	if err := session.ValidateName(p.Name); err != nil {
		return 0, apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
	}
	id, err := s.sessions.Create(ctx, p)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodeInternal, "create session", err)
	}
	return id, nil
}

func (s *SessionService) Get(ctx context.Context, id ids.SessionId) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if err == session.ErrNotFound {
			return nil, apierrors.New(apierrors.CodeNotFound, "session not found")
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, "load session", err)
	}
	return sess, nil
}

// Invite adds userID to sessionID, provided requesterID holds
// PermInviteMember.
func (s *SessionService) Invite(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermInviteMember); err != nil {
		return err
	}
	if err := s.sessions.AddMember(ctx, sessionID, userID); err != nil {
		if err == session.ErrAlreadyMember {
			return apierrors.New(apierrors.CodeAlreadyExists, "user is already a member")
		}
		return apierrors.Wrap(apierrors.CodeInternal, "add session member", err)
	}
	if err := s.resolver.InvalidateSession(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate permission cache after membership change")
	}
	return nil
}

// Leave removes requesterID from sessionID (leave_session). If the session
// becomes empty it is cascade-deleted; otherwise, if it is E2EE, the next
// send must rotate the room key (leaving-to-process).
func (s *SessionService) Leave(ctx context.Context, userID ids.UserId, sessionID ids.SessionId) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.RemoveMember(ctx, sessionID, userID); err != nil {
		if err == session.ErrMemberNotFound {
			return apierrors.New(apierrors.CodeNotFound, "not a member of this session")
		}
		return apierrors.Wrap(apierrors.CodeInternal, "remove session member", err)
	}
	remaining, err := s.sessions.CountMembers(ctx, sessionID)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "count session members", err)
	}
	if remaining == 0 {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			return apierrors.Wrap(apierrors.CodeInternal, "delete emptied session", err)
		}
		return nil
	}
	if sess.IsEncrypted {
		if err := s.sessions.SetLeavingToProcess(ctx, sessionID, true); err != nil {
			s.log.Warn().Err(err).Msg("failed to set leaving-to-process after member leave")
		}
	}
	if err := s.resolver.InvalidateSession(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate permission cache after membership change")
	}
	return nil
}

// Kick removes userID from sessionID, provided requesterID holds
// PermKickMember. Self-kick and kicking the session creator are rejected.
func (s *SessionService) Kick(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId) error {
	if userID == requesterID {
		return apierrors.New(apierrors.CodeInvalidArgument, "cannot kick yourself")
	}
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.OwnerID == userID {
		return apierrors.New(apierrors.CodeInvalidArgument, "cannot kick the session owner")
	}
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermKickMember); err != nil {
		return err
	}
	if err := s.sessions.RemoveMember(ctx, sessionID, userID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "remove session member", err)
	}
	if sess.IsEncrypted {
		_ = s.sessions.SetLeavingToProcess(ctx, sessionID, true)
	}
	if err := s.resolver.InvalidateSession(ctx, sessionID); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate permission cache after membership change")
	}
	return nil
}

// Mute mutes userID in sessionID for the given duration, provided
// requesterID holds PermMuteMember.
func (s *SessionService) Mute(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId, duration time.Duration) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermMuteMember); err != nil {
		return err
	}
	if err := s.moderation.Mute(ctx, sessionID, userID, duration); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "mute member", err)
	}
	return nil
}

// Unmute clears a mute set by Mute, provided requesterID holds PermMuteMember.
func (s *SessionService) Unmute(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermMuteMember); err != nil {
		return err
	}
	if err := s.moderation.ClearMute(ctx, sessionID, userID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "unmute member", err)
	}
	return nil
}

// Ban bans userID from sessionID for the given duration, provided
// requesterID holds PermBanMember.
func (s *SessionService) Ban(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId, duration time.Duration) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermBanMember); err != nil {
		return err
	}
	if err := s.moderation.Ban(ctx, sessionID, userID, duration); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "ban member", err)
	}
	_ = s.sessions.RemoveMember(ctx, sessionID, userID)
	return nil
}

// Unban clears a ban set by Ban, provided requesterID holds PermBanMember.
// Clearing the ban does not re-add membership; the user must rejoin.
func (s *SessionService) Unban(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermBanMember); err != nil {
		return err
	}
	if err := s.moderation.ClearBan(ctx, sessionID, userID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "unban member", err)
	}
	return nil
}

// SetInfo updates name/avatar/description, provided requesterID holds
// PermManageSession.
func (s *SessionService) SetInfo(ctx context.Context, requesterID ids.UserId, sessionID ids.SessionId, update session.InfoUpdate) error {
	if update.Name != nil {
		if err := session.ValidateName(*update.Name); err != nil {
			return apierrors.Wrap(apierrors.CodeInvalidArgument, err.Error(), err)
		}
	}
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermManageSession); err != nil {
		return err
	}
	if err := s.sessions.SetInfo(ctx, sessionID, update); err != nil {
		if err == session.ErrNotFound {
			return apierrors.New(apierrors.CodeNotFound, "session not found")
		}
		return apierrors.Wrap(apierrors.CodeInternal, "set session info", err)
	}
	return nil
}

// Delete deletes sessionID, provided requesterID holds PermManageSession.
func (s *SessionService) Delete(ctx context.Context, requesterID ids.UserId, sessionID ids.SessionId) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermManageSession); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if err == session.ErrNotFound {
			return apierrors.New(apierrors.CodeNotFound, "session not found")
		}
		return apierrors.Wrap(apierrors.CodeInternal, "delete session", err)
	}
	return nil
}

// AssignRole grants roleID to userID in sessionID, provided requesterID
// holds PermManageRoles.
func (s *SessionService) AssignRole(ctx context.Context, requesterID, userID ids.UserId, sessionID ids.SessionId, roleID ids.RoleId) error {
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermManageRoles); err != nil {
		return err
	}
	if err := s.sessions.AssignRole(ctx, sessionID, userID, roleID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "assign role", err)
	}
	if err := s.resolver.InvalidateUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate permission cache after role change")
	}
	return nil
}

// E2EEize transitions a plaintext session to end-to-end-encrypted, provided
// requesterID holds PermRotateRoomKey (the spec's E2EEizeAndDee2eeizeSession
// permission; see DESIGN.md for why this reuses the rotation permission
// rather than minting a twelfth bitmask bit). It opens a fresh room-key
// epoch and broadcasts the key-distribution events so the caller's client
// can hand a freshly generated room key to every other member.
func (s *SessionService) E2EEize(ctx context.Context, requesterID ids.UserId, sessionID ids.SessionId) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsEncrypted {
		return apierrors.New(apierrors.CodeFailedPrecondition, "session is already end-to-end encrypted")
	}
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermRotateRoomKey); err != nil {
		return err
	}
	if err := s.sessions.SetEncrypted(ctx, sessionID, true); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "enable session encryption", err)
	}
	if _, err := s.sessions.BeginRoomKeyRotation(ctx, sessionID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "begin room key rotation", err)
	}
	s.broadcastRoomKeyRotation(ctx, sessionID, requesterID)
	return nil
}

// Dee2eeize transitions an E2EE session back to plaintext, provided
// requesterID holds PermRotateRoomKey.
func (s *SessionService) Dee2eeize(ctx context.Context, requesterID ids.UserId, sessionID ids.SessionId) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsEncrypted {
		return apierrors.New(apierrors.CodeFailedPrecondition, "session is not end-to-end encrypted")
	}
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermRotateRoomKey); err != nil {
		return err
	}
	if err := s.sessions.SetEncrypted(ctx, sessionID, false); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "disable session encryption", err)
	}
	return nil
}

// RotateRoomKey manually begins a new E2EE room-key epoch for an encrypted
// session, provided requesterID holds PermRotateRoomKey.
func (s *SessionService) RotateRoomKey(ctx context.Context, requesterID ids.UserId, sessionID ids.SessionId) (int64, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !sess.IsEncrypted {
		return 0, apierrors.New(apierrors.CodeFailedPrecondition, "session is not end-to-end encrypted")
	}
	if err := s.requirePermission(ctx, requesterID, sessionID, rbac.PermRotateRoomKey); err != nil {
		return 0, err
	}
	epoch, err := s.sessions.BeginRoomKeyRotation(ctx, sessionID)
	if err != nil {
		return 0, apierrors.Wrap(apierrors.CodeInternal, "begin room key rotation", err)
	}
	s.broadcastRoomKeyRotation(ctx, sessionID, requesterID)
	return epoch, nil
}

// RotateIfDue implements the automatic half of the key rotation state
// machine (spec.md §4.4): called after a send_msg into an encrypted session
// has been durably appended, it checks whether the rotation TTL elapsed or
// a member left while encrypted (leaving-to-process), and if so begins a
// new epoch and broadcasts the distribution events with triggeringUserID as
// the new epoch's initiator.
func (s *SessionService) RotateIfDue(ctx context.Context, sessionID ids.SessionId, triggeringUserID ids.UserId) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to load session for room key rotation check")
		return
	}
	if !session.RoomKeyDue(sess, s.rotationTTL) {
		return
	}
	if _, err := s.sessions.BeginRoomKeyRotation(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Msg("failed to begin due room key rotation")
		return
	}
	if err := s.sessions.SetLeavingToProcess(ctx, sessionID, false); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear leaving-to-process after rotation")
	}
	s.broadcastRoomKeyRotation(ctx, sessionID, triggeringUserID)
}

// broadcastRoomKeyRotation emits UpdateRoomKey to every member and, for
// every member other than initiatorID, a SendRoomKey envelope routed
// directly to initiatorID carrying that member's long-term public key so
// the initiator's client can encrypt a fresh room key per recipient. Both
// are durably persisted so fetch_msgs replay delivers them to a
// disconnected client exactly like any other message.
func (s *SessionService) broadcastRoomKeyRotation(ctx context.Context, sessionID ids.SessionId, initiatorID ids.UserId) {
	members, err := s.sessions.ListMembers(ctx, sessionID, nil, 10000)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list members for room key rotation broadcast")
		return
	}

	updateData, _ := json.Marshal(map[string]int64{"session_id": int64(sessionID)})
	if _, err := s.messages.Create(ctx, message.CreateParams{
		Type:      message.EventRoomKeyUpdate,
		Data:      updateData,
		SenderID:  &initiatorID,
		SessionID: &sessionID,
	}); err != nil {
		s.log.Error().Err(err).Msg("failed to persist UpdateRoomKey event")
	} else {
		sid := int64(sessionID)
		if err := s.publisher.Publish(ctx, bus.Envelope{Type: string(message.EventRoomKeyUpdate), Data: updateData, SessionID: &sid}); err != nil {
			s.log.Error().Err(err).Msg("failed to publish UpdateRoomKey event")
		}
	}

	for _, m := range members {
		if m.UserID == initiatorID {
			continue
		}
		u, err := s.users.GetByID(ctx, m.UserID)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", int64(m.UserID)).Msg("failed to load member public key for room key rotation")
			continue
		}
		payload := map[string]any{"session_id": int64(sessionID), "sender": int64(m.UserID), "public_key": u.PublicKey}
		data, _ := json.Marshal(payload)
		if _, err := s.messages.Create(ctx, message.CreateParams{
			Type:        message.EventRoomKeySend,
			Data:        data,
			SenderID:    &m.UserID,
			SessionID:   &sessionID,
			RecipientID: &initiatorID,
		}); err != nil {
			s.log.Error().Err(err).Msg("failed to persist SendRoomKey event")
			continue
		}
		rid := int64(initiatorID)
		sid := int64(sessionID)
		if err := s.publisher.Publish(ctx, bus.Envelope{Type: string(message.EventRoomKeySend), Data: data, SessionID: &sid, RecipientID: &rid}); err != nil {
			s.log.Error().Err(err).Msg("failed to publish SendRoomKey event")
		}
	}
}

// SendRoomKey routes a client's encrypted room key to a single recipient
// (send_room_key → ReceiveRoomKey). The server never sees the plaintext key.
func (s *SessionService) SendRoomKey(ctx context.Context, senderID, recipientID ids.UserId, sessionID ids.SessionId, encryptedRoomKey string) error {
	if _, err := s.sessions.GetMember(ctx, sessionID, senderID); err != nil {
		return apierrors.New(apierrors.CodePermissionDenied, "not a member of this session")
	}
	if _, err := s.sessions.GetMember(ctx, sessionID, recipientID); err != nil {
		return apierrors.New(apierrors.CodeNotFound, "recipient is not a member of this session")
	}
	payload := map[string]any{"session_id": int64(sessionID), "user_id": int64(senderID), "room_key": encryptedRoomKey}
	data, _ := json.Marshal(payload)
	if _, err := s.messages.Create(ctx, message.CreateParams{
		Type:        message.EventRoomKeyReceive,
		Data:        data,
		SenderID:    &senderID,
		SessionID:   &sessionID,
		RecipientID: &recipientID,
	}); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "persist room key delivery", err)
	}
	rid := int64(recipientID)
	sid := int64(sessionID)
	if err := s.publisher.Publish(ctx, bus.Envelope{Type: string(message.EventRoomKeyReceive), Data: data, SessionID: &sid, RecipientID: &rid}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish ReceiveRoomKey event")
	}
	return nil
}

func (s *SessionService) requirePermission(ctx context.Context, userID ids.UserId, sessionID ids.SessionId, perm rbac.SessionPermission) error {
	allowed, err := s.resolver.HasPermission(ctx, userID, sessionID, perm)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "resolve permission", err)
	}
	if !allowed {
		return apierrors.New(apierrors.CodePermissionDenied, "missing required session permission")
	}
	return nil
}
