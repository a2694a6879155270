// Package replication moves mirror operations from the relational write
// path into the realtime tree, either right after commit or through a
// transactional outbox drained by Relay.
package replication

import (
	"context"
	"encoding/json"

	"echosphere/internal/config"
	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/repository"

	"github.com/pkg/errors"
)

// Replicator is called twice per mutation: Stage inside the relational
// transaction and Deliver after it committed.
type Replicator interface {
	Stage(ctx context.Context, outbox repository.OutboxRepository, ops []mirror.Op) error
	Deliver(ctx context.Context, ops []mirror.Op) error
}

// New picks the replicator for a sync mode; an empty mode means direct.
func New(mode string, tree mirror.Tree) (Replicator, error) {
	switch mode {
	case config.SyncModeDirect, "":
		return NewDirect(tree), nil
	case config.SyncModeOutbox:
		return NewOutbox(), nil
	default:
		return nil, errors.Errorf("unknown sync mode %q", mode)
	}
}

// Direct writes the mirror after commit. A failure is reported to the
// caller and never retried; the relational change stays.
type Direct struct {
	tree mirror.Tree
}

// NewDirect returns a replicator that writes tree after each commit.
func NewDirect(tree mirror.Tree) *Direct {
	return &Direct{tree: tree}
}

func (d *Direct) Stage(context.Context, repository.OutboxRepository, []mirror.Op) error {
	return nil
}

func (d *Direct) Deliver(ctx context.Context, ops []mirror.Op) error {
	return mirror.ApplyAll(ctx, d.tree, ops)
}

// Outbox records ops in the same transaction as the relational change.
// Delivery happens later in Relay.
type Outbox struct{}

// NewOutbox returns a replicator that stages ops for the relay.
func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Stage(ctx context.Context, outbox repository.OutboxRepository, ops []mirror.Op) error {
	events, err := Events(ops)
	if err != nil {
		return err
	}
	return outbox.Add(ctx, events)
}

func (o *Outbox) Deliver(context.Context, []mirror.Op) error {
	return nil
}

// Events encodes ops as outbox rows.
func Events(ops []mirror.Op) ([]model.OutboxEvent, error) {
	events := make([]model.OutboxEvent, 0, len(ops))
	for _, op := range ops {
		payload, err := json.Marshal(op)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s %s", op.Kind, op.Path)
		}
		events = append(events, model.OutboxEvent{
			Op:      string(op.Kind),
			Path:    op.Path,
			Payload: payload,
		})
	}
	return events, nil
}
