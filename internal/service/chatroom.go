package service

import (
	"context"
	"strings"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/replication"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
)

type chatRoomService struct {
	repos repository.Repositories
	w     dualWriter
}

// NewChatRoomService returns the chatroom service writing through repl.
func NewChatRoomService(repos repository.Repositories, uow repository.UnitOfWork, repl replication.Replicator) ChatRoomService {
	return &chatRoomService{repos: repos, w: dualWriter{uow: uow, repl: repl}}
}

// createRoom inserts a room for ids and returns the op that mirrors it.
func createRoom(ctx context.Context, r repository.Repositories, name string, isGroup bool, ids []uint) (*model.ChatRoom, []mirror.Op, error) {
	if err := requireUsers(ctx, r, ids); err != nil {
		return nil, nil, err
	}

	room := &model.ChatRoom{Name: name, IsGroup: isGroup}
	if err := r.ChatRooms.Create(ctx, room, ids); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create chatroom")
	}

	room, err := r.ChatRooms.FindByID(ctx, room.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to reload chatroom")
	}

	return room, []mirror.Op{overwriteRoom(room)}, nil
}

func (s *chatRoomService) Create(ctx context.Context, callerID uint, name string, participantIDs []uint) (*ChatRoomView, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(participantIDs) == 0 {
		return nil, newError(ErrValidation, "Group name and participants are required")
	}

	ids := model.UniqueIDs(participantIDs, []uint{callerID})

	var room *model.ChatRoom
	err := s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		var (
			ops []mirror.Op
			err error
		)
		room, ops, err = createRoom(ctx, r, name, true, ids)
		return ops, err
	})
	if err != nil {
		return nil, err
	}

	return newChatRoomView(room), nil
}

func (s *chatRoomService) AddParticipants(ctx context.Context, callerID, roomID uint, userIDs []uint) error {
	ids := model.UniqueIDs(userIDs)
	if roomID == 0 || len(ids) == 0 {
		return newError(ErrValidation, "Participants are required")
	}

	return s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireParticipant(ctx, r, roomID, callerID); err != nil {
			return nil, err
		}
		if err := requireUsers(ctx, r, ids); err != nil {
			return nil, err
		}
		if err := r.ChatRooms.Connect(ctx, roomID, ids); err != nil {
			return nil, errors.Wrap(err, "failed to add participants")
		}

		path := mirror.Path(model.MirrorChatRooms, roomID)
		return []mirror.Op{mirror.UnionOp(path, "participants", ids)}, nil
	})
}

func (s *chatRoomService) Participants(ctx context.Context, callerID, roomID uint) ([]model.UserSummary, error) {
	if err := requireParticipant(ctx, s.repos, roomID, callerID); err != nil {
		return nil, err
	}

	users, err := s.repos.ChatRooms.Participants(ctx, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list participants")
	}

	out := make([]model.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

func (s *chatRoomService) Rename(ctx context.Context, callerID, roomID uint, name string) (*ChatRoomView, error) {
	name = strings.TrimSpace(name)
	if roomID == 0 || name == "" {
		return nil, newError(ErrValidation, "Chatroom ID and name are required")
	}

	var room *model.ChatRoom
	err := s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireParticipant(ctx, r, roomID, callerID); err != nil {
			return nil, err
		}
		if err := r.ChatRooms.Rename(ctx, roomID, name); err != nil {
			return nil, errors.Wrap(err, "failed to rename chatroom")
		}

		var err error
		if room, err = r.ChatRooms.FindByID(ctx, roomID); err != nil {
			return nil, errors.Wrap(err, "failed to reload chatroom")
		}
		return []mirror.Op{overwriteRoom(room)}, nil
	})
	if err != nil {
		return nil, err
	}

	return newChatRoomView(room), nil
}

func (s *chatRoomService) Leave(ctx context.Context, callerID, roomID uint) error {
	if roomID == 0 {
		return newError(ErrValidation, "Chatroom ID is required")
	}

	return s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireParticipant(ctx, r, roomID, callerID); err != nil {
			return nil, err
		}
		if err := r.ChatRooms.Disconnect(ctx, roomID, callerID); err != nil {
			return nil, errors.Wrap(err, "failed to leave chatroom")
		}

		room, err := r.ChatRooms.FindByID(ctx, roomID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to reload chatroom")
		}
		return []mirror.Op{overwriteRoom(room)}, nil
	})
}

func (s *chatRoomService) Delete(ctx context.Context, callerID, roomID uint) error {
	return s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireParticipant(ctx, r, roomID, callerID); err != nil {
			return nil, err
		}

		messageIDs, err := r.ChatRooms.Delete(ctx, roomID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to delete chatroom")
		}

		ops := make([]mirror.Op, 0, len(messageIDs)+1)
		ops = append(ops, mirror.RemoveOp(mirror.Path(model.MirrorChatRooms, roomID)))
		for _, id := range messageIDs {
			ops = append(ops, mirror.RemoveOp(mirror.Path(model.MirrorMessages, id)))
		}
		return ops, nil
	})
}

func (s *chatRoomService) List(ctx context.Context, callerID uint) ([]ChatRoomSummary, error) {
	rooms, err := s.repos.ChatRooms.ListForUser(ctx, callerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chatrooms")
	}

	ids := make([]uint, 0, len(rooms))
	for _, room := range rooms {
		ids = append(ids, room.ID)
	}
	latest, err := s.repos.Messages.Latest(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest messages")
	}

	out := make([]ChatRoomSummary, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		summary := ChatRoomSummary{
			ID:           room.ID,
			Name:         room.Name,
			IsGroup:      room.IsGroup,
			Participants: make([]model.UserSummary, 0, len(room.Participants)),
			CreatedAt:    room.CreatedAt,
		}
		for j := range room.Participants {
			summary.Participants = append(summary.Participants, room.Participants[j].Summary())
		}
		if msg, ok := latest[room.ID]; ok {
			view := newMessageView(&msg)
			summary.LastMessage = &view
		}
		out = append(out, summary)
	}
	return out, nil
}

// overwriteRoom replaces the whole mirror document, dropping any field
// that only the mirror carried.
func overwriteRoom(room *model.ChatRoom) mirror.Op {
	return mirror.SetOp(mirror.Path(model.MirrorChatRooms, room.ID), model.NewMirrorChatRoom(room))
}
