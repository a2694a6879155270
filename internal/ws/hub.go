// Package ws fans realtime mirror events out to websocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"echosphere/internal/mirror"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/atomic"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4 * 1024
	maxSendChannelSize = 256
	defaultFeedSize    = 1000
)

// ErrHubClosed is returned by Subscribe after Shutdown.
var ErrHubClosed = errors.New("hub is shut down")

// HubOptions tunes feed buffering and idle feed cleanup.
type HubOptions struct {
	MaxFeedSize     int
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
}

// Hub owns one Feed per mirror collection.
type Hub struct {
	mu       sync.Mutex
	tree     mirror.Tree
	feeds    map[string]*Feed
	options  HubOptions
	shutdown chan struct{}
	once     sync.Once
	metrics  *Metrics
}

// Metrics are the hub-wide counters shared by every feed.
type Metrics struct {
	EventsSent    atomic.Int64
	EventsDropped atomic.Int64
	Subscriptions atomic.Int64
	Errors        atomic.Int64
}

// Stats is a point-in-time snapshot of the hub metrics.
type Stats struct {
	Feeds         int   `json:"feeds"`
	Subscriptions int64 `json:"subscriptions"`
	EventsSent    int64 `json:"eventsSent"`
	EventsDropped int64 `json:"eventsDropped"`
	Errors        int64 `json:"errors"`
}

// NewHub returns a hub reading events from tree. Only the first
// options value is used; without one the defaults apply.
func NewHub(tree mirror.Tree, options ...HubOptions) *Hub {
	opts := HubOptions{
		MaxFeedSize:     defaultFeedSize,
		CleanupInterval: time.Minute,
		IdleTimeout:     5 * time.Minute,
	}
	if len(options) > 0 {
		opts = options[0]
	}

	return &Hub{
		tree:     tree,
		feeds:    make(map[string]*Feed),
		options:  opts,
		shutdown: make(chan struct{}),
		metrics:  &Metrics{},
	}
}

// Run sweeps idle feeds until ctx is done, then shuts the hub down.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Shutdown()
			return nil
		case <-h.shutdown:
			return nil
		case <-ticker.C:
			h.cleanupIdleFeeds()
		}
	}
}

// Subscribe attaches c to the feed of its query's collection. The client
// first receives the matching snapshot as child_added events and then the
// live changes.
func (h *Hub) Subscribe(ctx context.Context, c *Client) error {
	if !mirror.ValidCollection(c.Query.Path) {
		return errors.Wrapf(mirror.ErrInvalidPath, "%q", c.Query.Path)
	}

	// A feed can close between lookup and join; the second lookup then
	// opens a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		feed, err := h.feed(ctx, c.Query.Path)
		if err != nil {
			h.metrics.Errors.Inc()
			return err
		}
		if feed.register(c) {
			h.metrics.Subscriptions.Inc()
			return nil
		}
	}

	h.metrics.Errors.Inc()
	return errors.Errorf("feed %s is not accepting subscribers", c.Query.Path)
}

// Unsubscribe detaches c from its feed and closes it.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	feed, ok := h.feeds[c.Query.Path]
	h.mu.Unlock()

	if ok {
		feed.unregister(c)
	}
	c.Close()
}

func (h *Hub) feed(ctx context.Context, collection string) (*Feed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.shutdown:
		return nil, ErrHubClosed
	default:
	}

	if feed, ok := h.feeds[collection]; ok && !feed.isClosed() {
		return feed, nil
	}

	stream, err := h.tree.Events(ctx, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to subscribe to %s", collection)
	}

	feed := newFeed(collection, h.tree, stream, h.options.MaxFeedSize, h.metrics)
	h.feeds[collection] = feed
	return feed, nil
}

// Stats reports the number of live feeds and the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	feeds := len(h.feeds)
	h.mu.Unlock()

	return Stats{
		Feeds:         feeds,
		Subscriptions: h.metrics.Subscriptions.Load(),
		EventsSent:    h.metrics.EventsSent.Load(),
		EventsDropped: h.metrics.EventsDropped.Load(),
		Errors:        h.metrics.Errors.Load(),
	}
}

// Shutdown stops every feed and makes further Subscribe calls fail.
// It is safe to call more than once.
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.shutdown)

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, feed := range h.feeds {
			feed.Shutdown()
		}
		h.feeds = make(map[string]*Feed)
	})
}

func (h *Hub) cleanupIdleFeeds() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for collection, feed := range h.feeds {
		if feed.isClosed() || (feed.IsEmpty() && feed.IdleFor() > h.options.IdleTimeout) {
			feed.Shutdown()
			delete(h.feeds, collection)
		}
	}
}

// Feed relays the live events of one collection to its subscribers, each
// filtered by the subscriber's query.
type Feed struct {
	collection string
	tree       mirror.Tree
	stream     mirror.Stream
	clients    map[*Client]struct{}
	join       chan *Client
	leave      chan *Client
	shutdown   chan struct{}
	done       chan struct{}
	once       sync.Once
	// mu guards closed so that no join is queued after run has drained.
	mu         sync.Mutex
	closed     bool
	lastActive atomic.Time
	active     atomic.Int32
	pending    atomic.Int32
	maxSize    int
	metrics    *Metrics
}

func newFeed(collection string, tree mirror.Tree, stream mirror.Stream, maxSize int, metrics *Metrics) *Feed {
	f := &Feed{
		collection: collection,
		tree:       tree,
		stream:     stream,
		clients:    make(map[*Client]struct{}),
		join:       make(chan *Client, maxSendChannelSize),
		leave:      make(chan *Client, maxSendChannelSize),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		maxSize:    maxSize,
		metrics:    metrics,
	}
	f.lastActive.Store(time.Now())

	go f.run()

	return f
}

func (f *Feed) run() {
	defer func() {
		f.stream.Close()

		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()

		for drained := false; !drained; {
			select {
			case c := <-f.join:
				f.pending.Dec()
				c.Close()
			default:
				drained = true
			}
		}

		for c := range f.clients {
			c.Close()
		}
		f.clients = nil
		f.active.Store(0)
		close(f.done)
	}()

	events := f.stream.C()
	for {
		select {
		case <-f.shutdown:
			return
		case c := <-f.join:
			f.handleRegister(c)
		case c := <-f.leave:
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				f.active.Dec()
				f.lastActive.Store(time.Now())
			}
		case ev, ok := <-events:
			if !ok {
				jww.WARN.Printf("feed %s: event stream ended", f.collection)
				return
			}
			f.handleEvent(ev)
		}
	}
}

// handleRegister runs on the feed goroutine, so events that arrive while
// the snapshot is read queue up behind it and are delivered afterwards.
func (f *Feed) handleRegister(c *Client) {
	f.pending.Dec()

	if len(f.clients) >= f.maxSize {
		c.SendError("too many subscribers")
		c.Close()
		return
	}

	children, err := f.tree.Children(c.ctx, f.collection)
	if err != nil {
		jww.ERROR.Printf("feed %s: snapshot failed: %v", f.collection, err)
		f.metrics.Errors.Inc()
		c.SendError("failed to load snapshot")
		c.Close()
		return
	}

	for _, child := range children {
		if !c.Query.Matches(child.Value) {
			continue
		}
		if c.Query.Scoped() {
			c.visible[child.Key] = struct{}{}
		}
		f.deliver(c, mirror.Event{
			Type:  mirror.ChildAdded,
			Path:  f.collection + "/" + child.Key,
			Key:   child.Key,
			Value: child.Value,
		})
	}

	f.clients[c] = struct{}{}
	f.active.Inc()
	f.lastActive.Store(time.Now())
}

func (f *Feed) handleEvent(ev mirror.Event) {
	for c := range f.clients {
		if c.IsClosed() {
			delete(f.clients, c)
			f.active.Dec()
			continue
		}
		if f.admits(c, ev) {
			f.deliver(c, ev)
		}
	}
	f.lastActive.Store(time.Now())
}

// admits decides whether c sees ev. A scoped client also sees the change
// or removal of a child it was shown before, so it can drop that child
// once it no longer matches.
func (f *Feed) admits(c *Client, ev mirror.Event) bool {
	if !c.Query.Scoped() {
		return c.Query.Matches(ev.Value)
	}

	_, seen := c.visible[ev.Key]
	if ev.Type == mirror.ChildRemoved {
		delete(c.visible, ev.Key)
		return seen
	}

	if c.Query.Matches(ev.Value) {
		c.visible[ev.Key] = struct{}{}
		return true
	}
	delete(c.visible, ev.Key)
	return seen
}

func (f *Feed) deliver(c *Client, ev mirror.Event) {
	if c.SendJSON(ev) {
		f.metrics.EventsSent.Inc()
		return
	}
	f.metrics.EventsDropped.Inc()
}

// register queues c for the feed goroutine. It fails once the feed has
// closed or when the join queue is full.
func (f *Feed) register(c *Client) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	select {
	case <-f.shutdown:
		return false
	default:
	}

	f.pending.Inc()
	select {
	case f.join <- c:
		return true
	default:
		f.pending.Dec()
		return false
	}
}

func (f *Feed) unregister(c *Client) {
	select {
	case f.leave <- c:
	case <-f.done:
	}
}

// IsEmpty reports a feed with no subscribers and none waiting to join.
func (f *Feed) IsEmpty() bool {
	return f.active.Load() == 0 && f.pending.Load() == 0
}

// IdleFor is the time since the feed last had a subscriber.
func (f *Feed) IdleFor() time.Duration {
	return time.Since(f.lastActive.Load())
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Shutdown asks the feed loop to exit; queued and active clients are
// closed by the loop.
func (f *Feed) Shutdown() {
	f.once.Do(func() { close(f.shutdown) })
}

// errorFrame is sent before the server closes a subscription it cannot serve.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeFrame(v any) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		jww.ERROR.Printf("ws: failed to encode frame: %v", err)
		return nil, false
	}
	return data, true
}
