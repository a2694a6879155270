package client

import (
	"context"
	"net/http"
	"sync"

	"echosphere/internal/mirror"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type State int

const (
	Unattached State = iota
	Attached
	Detached
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	default:
		return "detached"
	}
}

var ErrAttached = errors.New("subscription already attached or detached")

// Subscription is one live mirror query. It moves from Unattached to
// Attached once and ends Detached; a broken transport closes Events and is
// not retried.
type Subscription struct {
	url    string
	header http.Header
	Query  mirror.Query

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	events chan mirror.Event
	err    error
	done   chan struct{}
}

func newSubscription(url string, header http.Header, q mirror.Query) *Subscription {
	return &Subscription{
		url:    url,
		header: header,
		Query:  q,
		events: make(chan mirror.Event, 64),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events yields mirror events until the subscription ends.
func (s *Subscription) Events() <-chan mirror.Event {
	return s.events
}

// Err reports why Events closed, nil after a plain Detach.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Attach(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unattached {
		return ErrAttached
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil {
			err = errors.Wrapf(err, "subscribe %s: status %d", s.Query.Path, resp.StatusCode)
		}
		s.state = Detached
		close(s.events)
		return errors.Wrapf(err, "failed to attach to %s", s.Query.Path)
	}

	s.conn = conn
	s.state = Attached
	go s.read(conn)
	return nil
}

// frame is a server message: a mirror event or an error notice.
type frame struct {
	mirror.Event
	Message string `json:"message"`
}

func (s *Subscription) read(conn *websocket.Conn) {
	defer close(s.events)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			s.fail(err)
			return
		}

		switch f.Type {
		case mirror.ChildAdded, mirror.ChildChanged, mirror.ChildRemoved:
		case "error":
			s.fail(errors.Errorf("server closed subscription: %s", f.Message))
			return
		default:
			jww.DEBUG.Printf("subscription %s: ignoring %q frame", s.Query.Path, f.Type)
			continue
		}

		select {
		case s.events <- f.Event:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Attached && s.err == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.err = errors.Wrap(err, "subscription broken")
	}
}

// Detach ends the subscription. It is safe to call in any state and more
// than once.
func (s *Subscription) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Detached:
		return
	case Unattached:
		close(s.events)
	case Attached:
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}
	s.state = Detached
	close(s.done)
}
