package service

import (
	"context"
	"fmt"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/replication"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
)

type friendService struct {
	repos repository.Repositories
	w     dualWriter
}

// NewFriendService returns the friend service. Accepting a request also
// opens a mirrored direct chatroom.
func NewFriendService(repos repository.Repositories, uow repository.UnitOfWork, repl replication.Replicator) FriendService {
	return &friendService{repos: repos, w: dualWriter{uow: uow, repl: repl}}
}

func (s *friendService) SendRequest(ctx context.Context, callerID, receiverID uint) error {
	if receiverID == 0 {
		return newError(ErrValidation, "Receiver ID is required")
	}
	if receiverID == callerID {
		return newError(ErrValidation, "You cannot befriend yourself")
	}

	return s.w.uow.Do(ctx, func(r repository.Repositories) error {
		if _, err := r.Users.FindByID(ctx, receiverID); err != nil {
			return lookupError(err, "User not found")
		}

		friends, err := r.Friends.AreFriends(ctx, callerID, receiverID)
		if err != nil {
			return errors.Wrap(err, "failed to check friendship")
		}
		if friends {
			return newError(ErrConflict, "You are already friends")
		}

		pending, err := r.Friends.PendingRequestExists(ctx, callerID, receiverID)
		if err != nil {
			return errors.Wrap(err, "failed to check pending requests")
		}
		if pending {
			return newError(ErrConflict, "A friend request is already pending")
		}

		req := &model.FriendRequest{SenderID: callerID, ReceiverID: receiverID, Status: model.FriendRequestPending}
		return errors.Wrap(r.Friends.CreateRequest(ctx, req), "failed to create friend request")
	})
}

func (s *friendService) PendingRequests(ctx context.Context, callerID uint) ([]FriendRequestView, error) {
	reqs, err := s.repos.Friends.PendingFor(ctx, callerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list friend requests")
	}

	out := make([]FriendRequestView, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, FriendRequestView{
			ID:         req.ID,
			SenderID:   req.SenderID,
			SenderName: req.Sender.Name,
			ReceiverID: req.ReceiverID,
			Status:     req.Status,
			CreatedAt:  req.CreatedAt,
		})
	}
	return out, nil
}

func (s *friendService) Accept(ctx context.Context, callerID, requestID uint) (*ChatRoomView, error) {
	var room *model.ChatRoom
	err := s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		req, err := pendingRequestFor(ctx, r, callerID, requestID)
		if err != nil {
			return nil, err
		}

		if err := r.Friends.SetRequestStatus(ctx, req.ID, model.FriendRequestAccepted); err != nil {
			return nil, errors.Wrap(err, "failed to accept friend request")
		}
		if err := r.Friends.Befriend(ctx, req.SenderID, req.ReceiverID); err != nil {
			return nil, errors.Wrap(err, "failed to create friendship")
		}

		name := fmt.Sprintf("%s, %s", req.Sender.Name, req.Receiver.Name)
		var ops []mirror.Op
		room, ops, err = createRoom(ctx, r, name, false, model.UniqueIDs([]uint{req.SenderID, req.ReceiverID}))
		return ops, err
	})
	if err != nil {
		return nil, err
	}

	return newChatRoomView(room), nil
}

func (s *friendService) Reject(ctx context.Context, callerID, requestID uint) error {
	return s.w.uow.Do(ctx, func(r repository.Repositories) error {
		req, err := pendingRequestFor(ctx, r, callerID, requestID)
		if err != nil {
			return err
		}
		return errors.Wrap(r.Friends.SetRequestStatus(ctx, req.ID, model.FriendRequestRejected), "failed to reject friend request")
	})
}

func (s *friendService) Friends(ctx context.Context, userID uint) ([]model.UserSummary, error) {
	if _, err := s.repos.Users.FindByID(ctx, userID); err != nil {
		return nil, lookupError(err, "User not found")
	}

	users, err := s.repos.Friends.ListFriendUsers(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list friends")
	}

	out := make([]model.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// pendingRequestFor loads a pending request addressed to callerID.
func pendingRequestFor(ctx context.Context, r repository.Repositories, callerID, requestID uint) (*model.FriendRequest, error) {
	if requestID == 0 {
		return nil, newError(ErrValidation, "Friend request ID is required")
	}

	req, err := r.Friends.FindRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError(err, "Friend request not found")
	}
	if req.ReceiverID != callerID {
		return nil, newError(ErrForbidden, "Only the receiver can answer this friend request")
	}
	if req.Status != model.FriendRequestPending {
		return nil, newError(ErrConflict, "Friend request already %s", req.Status)
	}
	return req, nil
}
