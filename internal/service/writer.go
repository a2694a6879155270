package service

import (
	"context"

	"echosphere/internal/mirror"
	"echosphere/internal/replication"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const msgInternal = "internal server error"

// dualWriter runs the relational half of a mutation in one transaction and
// hands the mirror ops it produced to the replicator.
type dualWriter struct {
	uow  repository.UnitOfWork
	repl replication.Replicator
}

// write commits fn and then delivers its ops. Checks that fail inside fn
// roll the transaction back, so neither store changes. A delivery failure
// after commit is reported as ErrMirror carrying mirrorMsg.
func (w dualWriter) write(ctx context.Context, mirrorMsg string, fn func(r repository.Repositories) ([]mirror.Op, error)) error {
	var ops []mirror.Op
	err := w.uow.Do(ctx, func(r repository.Repositories) error {
		var err error
		if ops, err = fn(r); err != nil {
			return err
		}
		return w.repl.Stage(ctx, r.Outbox, ops)
	})
	if err != nil {
		return err
	}

	if err := w.repl.Deliver(ctx, ops); err != nil {
		return wrapError(ErrMirror, err, mirrorMsg)
	}
	return nil
}

// lookupError turns a missing record into ErrNotFound with msg and wraps
// anything else as a store failure.
func lookupError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(ErrNotFound, msg)
	}
	return errors.Wrap(err, "relational store")
}

// requireParticipant checks that the room exists and userID belongs to it.
func requireParticipant(ctx context.Context, r repository.Repositories, roomID, userID uint) error {
	exists, err := r.ChatRooms.Exists(ctx, roomID)
	if err != nil {
		return errors.Wrap(err, "failed to look up chatroom")
	}
	if !exists {
		return newError(ErrNotFound, "Chatroom not found")
	}

	ok, err := r.ChatRooms.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to check participation")
	}
	if !ok {
		return newError(ErrForbidden, "You are not a participant of this chatroom")
	}
	return nil
}

// requireUsers fails with ErrNotFound unless every id names a user.
func requireUsers(ctx context.Context, r repository.Repositories, ids []uint) error {
	count, err := r.Users.CountExisting(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "failed to look up users")
	}
	if count != int64(len(ids)) {
		return newError(ErrNotFound, "One or more participants do not exist")
	}
	return nil
}
