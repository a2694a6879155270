package client

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"echosphere/internal/mirror"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const UnknownUser = "Unknown User"

// NameResolver looks up a user's display name.
type NameResolver interface {
	DisplayName(ctx context.Context, userID uint) string
}

// messageDoc is a messages/{id} document.
type messageDoc struct {
	ID         mirror.ID `json:"id"`
	Content    string    `json:"content"`
	SenderID   mirror.ID `json:"senderId"`
	ChatRoomID mirror.ID `json:"chatRoomId"`
}

// MessageList is the ordered message pane of one chatroom.
type MessageList struct {
	mu       sync.RWMutex
	names    NameResolver
	messages []Message
	index    map[uint]int
}

// NewMessageList returns an empty list resolving sender names via names.
func NewMessageList(names NameResolver) *MessageList {
	return &MessageList{names: names, index: make(map[uint]int)}
}

// Seed replaces the list with the HTTP conversation.
func (l *MessageList) Seed(messages []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = l.messages[:0]
	l.index = make(map[uint]int, len(messages))
	for _, m := range messages {
		if _, ok := l.index[m.ID]; ok {
			continue
		}
		l.index[m.ID] = len(l.messages)
		l.messages = append(l.messages, m)
	}
}

// Apply folds one messages event into the list and reports whether it
// changed. Added messages are appended in arrival order, at most once.
func (l *MessageList) Apply(ctx context.Context, ev mirror.Event) bool {
	id, err := strconv.ParseUint(ev.Key, 10, 64)
	if err != nil {
		jww.WARN.Printf("message list: ignoring key %q", ev.Key)
		return false
	}

	switch ev.Type {
	case mirror.ChildRemoved:
		return l.remove(uint(id))

	case mirror.ChildChanged:
		var doc messageDoc
		if err := json.Unmarshal(ev.Value, &doc); err != nil {
			jww.WARN.Printf("message list: undecodable message %s: %v", ev.Key, err)
			return false
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		i, ok := l.index[uint(id)]
		if !ok || l.messages[i].Message == doc.Content {
			return false
		}
		l.messages[i].Message = doc.Content
		return true

	case mirror.ChildAdded:
		var doc messageDoc
		if err := json.Unmarshal(ev.Value, &doc); err != nil {
			jww.WARN.Printf("message list: undecodable message %s: %v", ev.Key, err)
			return false
		}

		l.mu.RLock()
		_, seen := l.index[uint(id)]
		l.mu.RUnlock()
		if seen {
			return false
		}

		// Resolved outside the lock; it is a network round trip.
		sender := l.names.DisplayName(ctx, uint(doc.SenderID))

		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.index[uint(id)]; ok {
			return false
		}
		l.index[uint(id)] = len(l.messages)
		l.messages = append(l.messages, Message{
			ID:       uint(id),
			Sender:   sender,
			Message:  doc.Content,
			SenderID: uint(doc.SenderID),
		})
		return true
	}

	return false
}

func (l *MessageList) remove(id uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return false
	}

	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.messages); j++ {
		l.index[l.messages[j].ID] = j
	}
	return true
}

func (l *MessageList) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// userDoc is a users/{id} document.
type userDoc struct {
	Name string `json:"name"`
}

// DisplayName resolves a sender through a point read of users/{id},
// caching hits.
func (c *Client) DisplayName(ctx context.Context, userID uint) string {
	c.namesMu.Lock()
	if name, ok := c.names[userID]; ok {
		c.namesMu.Unlock()
		return name
	}
	c.namesMu.Unlock()

	raw, err := c.Value(ctx, mirror.Path("users", userID))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			jww.WARN.Printf("failed to resolve user %d: %v", userID, err)
		}
		return UnknownUser
	}

	var doc userDoc
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Name == "" {
		return UnknownUser
	}

	c.namesMu.Lock()
	c.names[userID] = doc.Name
	c.namesMu.Unlock()
	return doc.Name
}
