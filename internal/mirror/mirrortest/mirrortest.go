// Package mirrortest provides Tree doubles for tests.
package mirrortest

import (
	"context"

	"echosphere/internal/mirror"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

var ErrUnavailable = errors.New("mirror unavailable")

// Flaky wraps a Tree and fails every write while Down is set. Reads and
// subscriptions pass through.
type Flaky struct {
	mirror.Tree
	Down   atomic.Bool
	Writes atomic.Int64
}

func NewFlaky(tree mirror.Tree) *Flaky {
	return &Flaky{Tree: tree}
}

func (f *Flaky) Set(ctx context.Context, path string, value any) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Tree.Set(ctx, path, value)
}

func (f *Flaky) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Tree.Update(ctx, path, fields)
}

func (f *Flaky) Remove(ctx context.Context, path string) error {
	if err := f.write(); err != nil {
		return err
	}
	return f.Tree.Remove(ctx, path)
}

func (f *Flaky) write() error {
	f.Writes.Inc()
	if f.Down.Load() {
		return ErrUnavailable
	}
	return nil
}
