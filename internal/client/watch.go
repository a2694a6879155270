package client

import (
	"context"

	"echosphere/internal/mirror"

	"github.com/pkg/errors"
)

// RoomWatcher keeps a RoomList current for one user.
type RoomWatcher struct {
	client *Client
	List   *RoomList
	// OnChange is called after every event that changed the list.
	OnChange func([]Room)
}

// NewRoomWatcher keeps userID's room list in sync through c.
func NewRoomWatcher(c *Client, userID uint) *RoomWatcher {
	return &RoomWatcher{client: c, List: NewRoomList(userID)}
}

// Run seeds the list, then follows the chatRooms collection until ctx ends
// or the subscription breaks.
func (w *RoomWatcher) Run(ctx context.Context) error {
	rooms, err := w.client.ChatRooms(ctx)
	if err != nil {
		return err
	}
	w.List.Seed(rooms)
	w.notify()

	sub := w.client.Subscribe(mirror.Query{Path: "chatRooms"})
	return follow(ctx, sub, func(ev mirror.Event) {
		if w.List.Apply(ev) {
			w.notify()
		}
	})
}

func (w *RoomWatcher) notify() {
	if w.OnChange != nil {
		w.OnChange(w.List.Rooms())
	}
}

// ChatroomView keeps the message pane of one chatroom current.
type ChatroomView struct {
	client *Client
	RoomID uint
	Name   string
	List   *MessageList
	// OnChange is called after every event that changed the list.
	OnChange func([]Message)
}

// NewChatroomView follows one chatroom through c.
func NewChatroomView(c *Client, roomID uint) *ChatroomView {
	return &ChatroomView{client: c, RoomID: roomID, List: NewMessageList(c)}
}

func (v *ChatroomView) Run(ctx context.Context) error {
	conv, err := v.client.Conversation(ctx, v.RoomID)
	if err != nil {
		return err
	}
	v.Name = conv.ChatRoomName
	v.List.Seed(conv.Messages)
	v.notify()

	sub := v.client.Subscribe(mirror.Query{
		Path:    "messages",
		OrderBy: "chatRoomId",
		EqualTo: mirror.ID(v.RoomID).String(),
	})
	return follow(ctx, sub, func(ev mirror.Event) {
		if v.List.Apply(ctx, ev) {
			v.notify()
		}
	})
}

func (v *ChatroomView) notify() {
	if v.OnChange != nil {
		v.OnChange(v.List.Messages())
	}
}

// follow attaches sub and feeds its events to apply. The subscription is
// always detached on return.
func follow(ctx context.Context, sub *Subscription, apply func(mirror.Event)) error {
	defer sub.Detach()

	if err := sub.Attach(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errors.New("subscription closed by server")
			}
			apply(ev)
		}
	}
}
