package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"echosphere/internal/mirror"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer serves canned HTTP seeds and pushes whatever is written to
// push over every websocket subscription.
type fakeServer struct {
	*httptest.Server
	push     chan any
	mu       sync.Mutex
	lastAuth string
	closeNow chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{push: make(chan any, 16), closeNow: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	router := mux.NewRouter()
	router.HandleFunc("/chatrooms", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Trip","isGroup":true,"participants":[{"id":7,"name":"alice"}]}]`))
	})
	router.HandleFunc("/chatrooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chatRoomName":"Trip","messages":[{"id":1,"sender":"alice","message":"hi","senderId":7}]}`))
	})
	router.HandleFunc("/realtime/value", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") == "users/8" {
			_, _ = w.Write([]byte(`{"id":8,"name":"bob"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No value"}`))
	})
	router.HandleFunc("/realtime/subscribe", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.lastAuth = r.Header.Get("Authorization")
		fs.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case v := <-fs.push:
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			case <-fs.closeNow:
				return
			case <-gone:
				return
			}
		}
	})

	fs.Server = httptest.NewServer(router)
	t.Cleanup(fs.Close)
	return fs
}

func TestSubscriptionLifecycle(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.URL, "tok")

	sub := c.Subscribe(mirror.Query{Path: "chatRooms"})
	assert.Equal(t, Unattached, sub.State())

	require.NoError(t, sub.Attach(context.Background()))
	assert.Equal(t, Attached, sub.State())
	assert.ErrorIs(t, sub.Attach(context.Background()), ErrAttached)

	fs.push <- mirror.Event{Type: mirror.ChildAdded, Path: "chatRooms/1", Key: "1"}
	select {
	case ev := <-sub.Events():
		assert.Equal(t, "1", ev.Key)
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
	}

	fs.mu.Lock()
	assert.Equal(t, "Bearer tok", fs.lastAuth)
	fs.mu.Unlock()

	sub.Detach()
	sub.Detach()
	assert.Equal(t, Detached, sub.State())
	assert.NoError(t, sub.Err())
}

func TestDetachBeforeAttach(t *testing.T) {
	sub := New("http://127.0.0.1:1", "").Subscribe(mirror.Query{Path: "chatRooms"})
	sub.Detach()
	assert.Equal(t, Detached, sub.State())

	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.ErrorIs(t, sub.Attach(context.Background()), ErrAttached)
}

func TestBrokenTransportClosesEvents(t *testing.T) {
	fs := newFakeServer(t)
	sub := New(fs.URL, "").Subscribe(mirror.Query{Path: "chatRooms"})
	require.NoError(t, sub.Attach(context.Background()))
	defer sub.Detach()

	close(fs.closeNow)

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("events not closed")
	}
	assert.Error(t, sub.Err())
}

func TestServerErrorFrameEndsSubscription(t *testing.T) {
	fs := newFakeServer(t)
	sub := New(fs.URL, "").Subscribe(mirror.Query{Path: "chatRooms"})
	require.NoError(t, sub.Attach(context.Background()))
	defer sub.Detach()

	fs.push <- map[string]string{"type": "error", "message": "failed to load snapshot"}

	_, ok := <-sub.Events()
	assert.False(t, ok)
	require.Error(t, sub.Err())
	assert.Contains(t, sub.Err().Error(), "failed to load snapshot")
}

func TestRoomWatcherRun(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.URL, "tok")
	w := NewRoomWatcher(c, 7)

	changes := make(chan []Room, 8)
	w.OnChange = func(rooms []Room) { changes <- rooms }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	seeded := <-changes
	require.Len(t, seeded, 1)

	fs.push <- mirror.Event{Type: mirror.ChildChanged, Key: "1", Path: "chatRooms/1", Value: []byte(`{"id":1,"name":"Trip","participants":[8]}`)}
	select {
	case rooms := <-changes:
		assert.Empty(t, rooms)
	case <-time.After(3 * time.Second):
		t.Fatal("no change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestChatroomViewResolvesNames(t *testing.T) {
	fs := newFakeServer(t)
	c := New(fs.URL, "tok")
	v := NewChatroomView(c, 1)

	changes := make(chan []Message, 8)
	v.OnChange = func(msgs []Message) { changes <- msgs }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	require.Len(t, <-changes, 1)
	assert.Equal(t, "Trip", v.Name)

	fs.push <- mirror.Event{Type: mirror.ChildAdded, Key: "2", Path: "messages/2", Value: []byte(`{"id":2,"content":"yo","senderId":"8","chatRoomId":1}`)}
	fs.push <- mirror.Event{Type: mirror.ChildAdded, Key: "3", Path: "messages/3", Value: []byte(`{"id":3,"content":"??","senderId":99,"chatRoomId":1}`)}

	var msgs []Message
	for len(msgs) < 3 {
		select {
		case msgs = <-changes:
		case <-time.After(3 * time.Second):
			t.Fatal("no change")
		}
	}
	assert.Equal(t, "bob", msgs[1].Sender)
	assert.Equal(t, UnknownUser, msgs[2].Sender)

	close(fs.closeNow)
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("view did not stop")
	}
}
