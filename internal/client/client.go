// Package client consumes the EchoSphere API the way a chat UI does: it
// seeds views over HTTP and keeps them current from realtime mirror
// subscriptions.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"echosphere/internal/mirror"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by point reads of absent documents.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client

	namesMu sync.Mutex
	names   map[uint]string
}

// New returns an API client for baseURL authenticating with token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		names:   make(map[uint]string),
	}
}

type UserSummary struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	ID       uint   `json:"id"`
	Sender   string `json:"sender"`
	Message  string `json:"message"`
	SenderID uint   `json:"senderId"`
}

type RoomSummary struct {
	ID           uint          `json:"id"`
	Name         string        `json:"name"`
	IsGroup      bool          `json:"isGroup"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
}

type Conversation struct {
	ChatRoomName string    `json:"chatRoomName"`
	Messages     []Message `json:"messages"`
}

// ChatRooms fetches the caller's chatroom list.
func (c *Client) ChatRooms(ctx context.Context) ([]RoomSummary, error) {
	var rooms []RoomSummary
	if err := c.get(ctx, "/chatrooms", &rooms); err != nil {
		return nil, errors.Wrap(err, "failed to list chatrooms")
	}
	return rooms, nil
}

// Conversation fetches the seed payload of one chatroom.
func (c *Client) Conversation(ctx context.Context, roomID uint) (*Conversation, error) {
	var conv Conversation
	if err := c.get(ctx, "/chatrooms/"+mirror.ID(roomID).String(), &conv); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch chatroom %d", roomID)
	}
	return &conv, nil
}

// Value reads one mirror document, returning ErrNotFound when it is absent.
func (c *Client) Value(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.get(ctx, "/realtime/value?path="+url.QueryEscape(path), &raw)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return raw, nil
}

// Subscribe prepares a subscription; nothing is dialed until Attach.
func (c *Client) Subscribe(q mirror.Query) *Subscription {
	return newSubscription(c.subscribeURL(q), c.authHeader(), q)
}

func (c *Client) subscribeURL(q mirror.Query) string {
	v := url.Values{}
	v.Set("path", q.Path)
	if q.Filtered() {
		v.Set("orderBy", q.OrderBy)
		v.Set("equalTo", q.EqualTo)
	}

	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/realtime/subscribe?" + v.Encode()
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	return errors.Wrap(json.Unmarshal(body, dst), "failed to decode response")
}
