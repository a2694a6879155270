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

const msgMirrorEdit = "failed to update message in realtime store"

type messageService struct {
	repos repository.Repositories
	w     dualWriter
}

// NewMessageService returns the message service writing through repl.
func NewMessageService(repos repository.Repositories, uow repository.UnitOfWork, repl replication.Replicator) MessageService {
	return &messageService{repos: repos, w: dualWriter{uow: uow, repl: repl}}
}

func (s *messageService) Fetch(ctx context.Context, callerID, roomID uint) (*Conversation, error) {
	room, err := s.repos.ChatRooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, lookupError(err, "Chatroom not found")
	}
	if !room.HasParticipant(callerID) {
		return nil, newError(ErrForbidden, "You are not a participant of this chatroom")
	}

	messages, err := s.repos.Messages.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch messages")
	}

	conv := &Conversation{ChatRoomName: room.Name, Messages: make([]MessageView, 0, len(messages))}
	for i := range messages {
		conv.Messages = append(conv.Messages, newMessageView(&messages[i]))
	}
	return conv, nil
}

func (s *messageService) Send(ctx context.Context, callerID, roomID uint, text string) (*MessageView, error) {
	if strings.TrimSpace(text) == "" || callerID == 0 {
		return nil, newError(ErrValidation, "Message and sender ID are required")
	}

	var view MessageView
	err := s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireParticipant(ctx, r, roomID, callerID); err != nil {
			return nil, err
		}

		sender, err := r.Users.FindByID(ctx, callerID)
		if err != nil {
			return nil, lookupError(err, "Sender not found")
		}

		msg := &model.Message{ChatRoomID: roomID, SenderID: callerID, Content: text}
		if err := r.Messages.Create(ctx, msg); err != nil {
			return nil, errors.Wrap(err, "failed to send message")
		}
		msg.Sender = *sender
		view = newMessageView(msg)

		path := mirror.Path(model.MirrorMessages, msg.ID)
		return []mirror.Op{mirror.SetOp(path, model.NewMirrorMessage(msg))}, nil
	})
	if err != nil {
		return nil, err
	}

	return &view, nil
}

func (s *messageService) Edit(ctx context.Context, callerID, roomID, messageID uint, text string) (*model.Message, error) {
	if messageID == 0 || strings.TrimSpace(text) == "" {
		return nil, newError(ErrValidation, "Message ID and new content are required")
	}

	var updated *model.Message
	err := s.w.write(ctx, msgMirrorEdit, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireSender(ctx, r, roomID, messageID, callerID, "update"); err != nil {
			return nil, err
		}
		if err := r.Messages.UpdateContent(ctx, messageID, text); err != nil {
			return nil, errors.Wrap(err, "failed to update message")
		}

		var err error
		if updated, err = r.Messages.FindByID(ctx, messageID); err != nil {
			return nil, errors.Wrap(err, "failed to reload message")
		}

		path := mirror.Path(model.MirrorMessages, messageID)
		return []mirror.Op{mirror.UpdateOp(path, map[string]any{"content": text})}, nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *messageService) Delete(ctx context.Context, callerID, roomID, messageID uint) error {
	if messageID == 0 {
		return newError(ErrValidation, "Message ID is required")
	}

	return s.w.write(ctx, msgInternal, func(r repository.Repositories) ([]mirror.Op, error) {
		if err := requireSender(ctx, r, roomID, messageID, callerID, "delete"); err != nil {
			return nil, err
		}
		if err := r.Messages.Delete(ctx, messageID); err != nil {
			return nil, errors.Wrap(err, "failed to delete message")
		}
		return []mirror.Op{mirror.RemoveOp(mirror.Path(model.MirrorMessages, messageID))}, nil
	})
}

// requireSender checks that messageID lives in roomID and was sent by callerID.
func requireSender(ctx context.Context, r repository.Repositories, roomID, messageID, callerID uint, action string) error {
	msg, err := r.Messages.FindByID(ctx, messageID)
	if err != nil {
		return lookupError(err, "Message not found or invalid chatroom")
	}
	if msg.ChatRoomID != roomID {
		return newError(ErrNotFound, "Message not found or invalid chatroom")
	}
	if msg.SenderID != callerID {
		return newError(ErrForbidden, "You are not authorized to %s this message", action)
	}
	return nil
}
