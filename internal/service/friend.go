package service

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/ourchat/ourchat-server/internal/apierrors"
	"github.com/ourchat/ourchat-server/internal/bus"
	"github.com/ourchat/ourchat-server/internal/friend"
	"github.com/ourchat/ourchat-server/internal/ids"
	"github.com/ourchat/ourchat-server/internal/message"
)

// FriendService implements invite_friend / accept_friend_invitation,
// layering the friend package's durable invitation/friendship rows on top
// of the Message Pipeline so invitations and acceptances are delivered
// through the same fetch_msgs stream as any other event.
type FriendService struct {
	friends   friend.Repository
	messages  message.Repository
	publisher *bus.Publisher
	log       zerolog.Logger
}

func NewFriendService(friends friend.Repository, messages message.Repository, publisher *bus.Publisher, logger zerolog.Logger) *FriendService {
	return &FriendService{friends: friends, messages: messages, publisher: publisher, log: logger}
}

// Invite sends a friend invitation from inviterID to inviteeID: it appends
// a friend_invitation message addressed to the invitee, records the
// invitation row, and publishes the message for live delivery.
func (s *FriendService) Invite(ctx context.Context, inviterID, inviteeID ids.UserId) (*friend.Invitation, error) {
	if inviterID == inviteeID {
		return nil, apierrors.New(apierrors.CodeInvalidArgument, "cannot invite yourself")
	}
	if already, err := s.friends.AreFriends(ctx, inviterID, inviteeID); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "check existing friendship", err)
	} else if already {
		return nil, apierrors.New(apierrors.CodeAlreadyExists, "users are already friends")
	}

	payload, err := json.Marshal(map[string]int64{"inviter_id": int64(inviterID)})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "marshal invitation payload", err)
	}
	msg, err := s.messages.Create(ctx, message.CreateParams{
		Type:        message.EventFriendInvitation,
		Data:        payload,
		SenderID:    &inviterID,
		RecipientID: &inviteeID,
	})
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "append invitation message", err)
	}

	inv, err := s.friends.CreateInvitation(ctx, msg.ID, inviterID, inviteeID)
	if err != nil {
		if err == friend.ErrSelfInvite {
			return nil, apierrors.New(apierrors.CodeInvalidArgument, "cannot invite yourself")
		}
		return nil, apierrors.Wrap(apierrors.CodeInternal, "create invitation record", err)
	}

	recipient := int64(inviteeID)
	msgID := int64(msg.ID)
	if err := s.publisher.Publish(ctx, bus.Envelope{Type: string(msg.Type), Data: msg.Data, MessageID: &msgID, RecipientID: &recipient}); err != nil {
		s.log.Error().Err(err).Int64("invitation_id", inv.ID).Msg("failed to publish invitation")
	}
	return inv, nil
}

// Resolve accepts or declines an invitation. Accepting records the
// friendship and notifies the inviter with a friend_accepted message;
// declining only marks the invitation resolved.
func (s *FriendService) Resolve(ctx context.Context, invitationID int64, inviteeID ids.UserId, accept bool) (*friend.Invitation, error) {
	inv, err := s.friends.ResolveInvitation(ctx, invitationID, inviteeID, accept)
	if err != nil {
		switch err {
		case friend.ErrInvitationNotFound:
			return nil, apierrors.New(apierrors.CodeNotFound, "invitation not found")
		case friend.ErrNotInvitee:
			return nil, apierrors.New(apierrors.CodePermissionDenied, "only the invitation recipient may resolve it")
		case friend.ErrAlreadyResolved:
			return nil, apierrors.New(apierrors.CodeFailedPrecondition, "invitation has already been resolved")
		default:
			return nil, apierrors.Wrap(apierrors.CodeInternal, "resolve invitation", err)
		}
	}

	if !accept {
		return inv, nil
	}

	if err := s.friends.AddFriendship(ctx, inv.InviterID, inv.InviteeID); err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "record friendship", err)
	}

	payload, err := json.Marshal(map[string]int64{"invitee_id": int64(inv.InviteeID)})
	if err != nil {
		return inv, nil
	}
	msg, err := s.messages.Create(ctx, message.CreateParams{
		Type:        message.EventFriendAccepted,
		Data:        payload,
		SenderID:    &inv.InviteeID,
		RecipientID: &inv.InviterID,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to append friend_accepted notice")
		return inv, nil
	}
	recipient := int64(inv.InviterID)
	msgID := int64(msg.ID)
	if err := s.publisher.Publish(ctx, bus.Envelope{Type: string(msg.Type), Data: msg.Data, MessageID: &msgID, RecipientID: &recipient}); err != nil {
		s.log.Error().Err(err).Msg("failed to publish friend_accepted notice")
	}
	return inv, nil
}

// List returns a user's current friends.
func (s *FriendService) List(ctx context.Context, userID ids.UserId) ([]ids.UserId, error) {
	out, err := s.friends.ListFriends(ctx, userID)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, "list friends", err)
	}
	return out, nil
}

// Remove ends a friendship, symmetric for either party.
func (s *FriendService) Remove(ctx context.Context, userID, friendID ids.UserId) error {
	if err := s.friends.RemoveFriendship(ctx, userID, friendID); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, "remove friendship", err)
	}
	return nil
}
