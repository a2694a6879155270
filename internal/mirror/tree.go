// Package mirror is the realtime side of the chat data: a two-level path
// tree ("collection/key") of JSON documents that announces every change
// to its subscribers as child_added, child_changed or child_removed.
package mirror

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

type EventType string

const (
	ChildAdded   EventType = "child_added"
	ChildChanged EventType = "child_changed"
	ChildRemoved EventType = "child_removed"
)

// Event describes one change under a collection. For child_removed the
// value is the document as it was before removal.
type Event struct {
	Type  EventType       `json:"type"`
	Path  string          `json:"path"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Child is one document of a collection snapshot.
type Child struct {
	Key   string
	Value json.RawMessage
}

// Stream delivers the live events of one collection until closed.
type Stream interface {
	C() <-chan Event
	Close() error
}

// Tree is the realtime store accessor.
type Tree interface {
	// Set replaces the document at path.
	Set(ctx context.Context, path string, value any) error
	// Update merges fields into the document at path, creating it if absent.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Remove deletes the document at path. Removing a missing path is a no-op.
	Remove(ctx context.Context, path string) error
	// Get reads the document at path; ok is false when it does not exist.
	Get(ctx context.Context, path string) (value json.RawMessage, ok bool, err error)
	// Children snapshots a collection ordered by key.
	Children(ctx context.Context, collection string) ([]Child, error)
	// Events subscribes to the live changes of a collection. The
	// subscription is established when Events returns.
	Events(ctx context.Context, collection string) (Stream, error)
}

var ErrInvalidPath = errors.New("invalid mirror path")

// SplitPath splits "collection/key" into its parts.
func SplitPath(path string) (collection, key string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Wrapf(ErrInvalidPath, "%q", path)
	}
	return parts[0], parts[1], nil
}

// ValidCollection reports whether name can address a collection.
func ValidCollection(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/: ")
}

// Path addresses the document of id inside collection.
func Path(collection string, id uint) string {
	return collection + "/" + formatUint(uint64(id))
}
