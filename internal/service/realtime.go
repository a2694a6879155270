package service

import (
	"context"
	"encoding/json"
	"strconv"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type realtimeService struct {
	repos    repository.Repositories
	tree     mirror.Tree
	presence repository.PresenceRepository
}

// NewRealtimeService returns the subscription and presence service.
func NewRealtimeService(repos repository.Repositories, tree mirror.Tree, presence repository.PresenceRepository) RealtimeService {
	return &realtimeService{repos: repos, tree: tree, presence: presence}
}

// Authorize checks that callerID may subscribe to q and returns the query
// the feed should serve. Chatroom feeds are scoped to the caller's rooms;
// message feeds need the chatRoomId filter and participation in that room.
func (s *realtimeService) Authorize(ctx context.Context, callerID uint, q mirror.Query) (mirror.Query, error) {
	q.MemberField, q.Member = "", ""

	switch q.Path {
	case model.MirrorChatRooms:
		q.MemberField = model.MirrorParticipantsField
		q.Member = strconv.FormatUint(uint64(callerID), 10)
		return q, nil
	case model.MirrorUsers:
		return q, nil
	case model.MirrorMessages:
		if q.OrderBy != model.MirrorRoomField {
			return q, newError(ErrValidation, "Message subscriptions must filter by chatRoomId")
		}
		roomID, err := strconv.ParseUint(q.EqualTo, 10, 64)
		if err != nil || roomID == 0 {
			return q, newError(ErrValidation, "Invalid chatRoomId %q", q.EqualTo)
		}
		return q, requireParticipant(ctx, s.repos, uint(roomID), callerID)
	default:
		return q, newError(ErrValidation, "Unsupported subscription path %q", q.Path)
	}
}

func (s *realtimeService) Value(ctx context.Context, path string) (json.RawMessage, error) {
	collection, _, err := mirror.SplitPath(path)
	if err != nil {
		return nil, newError(ErrValidation, "Invalid path %q", path)
	}
	if collection != model.MirrorUsers {
		return nil, newError(ErrForbidden, "Point reads are limited to %s", model.MirrorUsers)
	}

	value, ok, err := s.tree.Get(ctx, path)
	if err != nil {
		return nil, wrapError(ErrMirror, err, msgInternal)
	}
	if !ok {
		return nil, newError(ErrNotFound, "No value at %s", path)
	}
	return value, nil
}

func (s *realtimeService) Join(ctx context.Context, roomID, userID uint) {
	if err := s.presence.Join(ctx, roomID, userID); err != nil {
		jww.WARN.Printf("presence: %v", err)
	}
}

func (s *realtimeService) Leave(ctx context.Context, roomID, userID uint) {
	left, err := s.presence.Leave(ctx, roomID, userID)
	if err != nil {
		jww.WARN.Printf("presence: %v", err)
		return
	}
	jww.DEBUG.Printf("user %d left chatroom %d, %d still online", userID, roomID, left)
}

func (s *realtimeService) Online(ctx context.Context, callerID, roomID uint) ([]uint, error) {
	if err := requireParticipant(ctx, s.repos, roomID, callerID); err != nil {
		return nil, err
	}

	online, err := s.presence.Online(ctx, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read presence")
	}
	return online, nil
}
