package mirror

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	maxUpdateAttempts = 3
	streamBuffer      = 256
)

// RedisTree stores each collection as a hash under "<prefix>:<collection>"
// and publishes its events on "<prefix>:events:<collection>".
type RedisTree struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTree returns a tree stored in rdb under prefix, "mirror" when
// empty.
func NewRedisTree(rdb *redis.Client, prefix string) *RedisTree {
	if prefix == "" {
		prefix = "mirror"
	}
	return &RedisTree{rdb: rdb, prefix: prefix}
}

func (t *RedisTree) collectionKey(collection string) string {
	return t.prefix + ":" + collection
}

func (t *RedisTree) channel(collection string) string {
	return t.prefix + ":events:" + collection
}

// Set replaces the document at path and publishes child_added or
// child_changed.
func (t *RedisTree) Set(ctx context.Context, path string, value any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "mirror: marshal %s", path)
	}

	added, err := t.rdb.HSet(ctx, t.collectionKey(collection), key, data).Result()
	if err != nil {
		return errors.Wrapf(err, "mirror: set %s", path)
	}

	evType := ChildChanged
	if added > 0 {
		evType = ChildAdded
	}

	return t.publish(ctx, Event{Type: evType, Path: collection, Key: key, Value: data})
}

// Update merges fields into the document at path.
func (t *RedisTree) Update(ctx context.Context, path string, fields map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	hash := t.collectionKey(collection)

	var (
		data    []byte
		existed bool
	)

	merge := func(tx *redis.Tx) error {
		doc := make(map[string]json.RawMessage)
		raw, err := tx.HGet(ctx, hash, key).Bytes()
		switch {
		case err == redis.Nil:
			existed = false
		case err != nil:
			return err
		default:
			existed = true
			if err := json.Unmarshal(raw, &doc); err != nil {
				return errors.Wrapf(err, "mirror: decode %s", path)
			}
		}

		for field, value := range fields {
			encoded, err := json.Marshal(value)
			if err != nil {
				return errors.Wrapf(err, "mirror: marshal field %s of %s", field, path)
			}
			doc[field] = encoded
		}

		data, err = json.Marshal(doc)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, hash, key, data)
			return nil
		})
		return err
	}

	for attempt := 1; ; attempt++ {
		err = t.rdb.Watch(ctx, merge, hash)
		if err != redis.TxFailedErr || attempt == maxUpdateAttempts {
			break
		}
	}
	if err != nil {
		return errors.Wrapf(err, "mirror: update %s", path)
	}

	evType := ChildChanged
	if !existed {
		evType = ChildAdded
	}

	return t.publish(ctx, Event{Type: evType, Path: collection, Key: key, Value: data})
}

// Remove deletes the document at path. Removing a missing document is a
// no-op and publishes nothing.
func (t *RedisTree) Remove(ctx context.Context, path string) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	hash := t.collectionKey(collection)

	old, err := t.rdb.HGet(ctx, hash, key).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "mirror: read %s before remove", path)
	}

	removed, err := t.rdb.HDel(ctx, hash, key).Result()
	if err != nil {
		return errors.Wrapf(err, "mirror: remove %s", path)
	}
	if removed == 0 {
		return nil
	}

	return t.publish(ctx, Event{Type: ChildRemoved, Path: collection, Key: key, Value: old})
}

// Get returns the document at path and whether it exists.
func (t *RedisTree) Get(ctx context.Context, path string) (json.RawMessage, bool, error) {
	collection, key, err := SplitPath(path)
	if err != nil {
		return nil, false, err
	}

	raw, err := t.rdb.HGet(ctx, t.collectionKey(collection), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "mirror: get %s", path)
	}

	return raw, true, nil
}

// Children lists a collection ordered by key.
func (t *RedisTree) Children(ctx context.Context, collection string) ([]Child, error) {
	if !ValidCollection(collection) {
		return nil, errors.Wrapf(ErrInvalidPath, "%q", collection)
	}

	all, err := t.rdb.HGetAll(ctx, t.collectionKey(collection)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "mirror: list %s", collection)
	}

	children := make([]Child, 0, len(all))
	for key, value := range all {
		children = append(children, Child{Key: key, Value: json.RawMessage(value)})
	}
	sort.Slice(children, func(i, j int) bool {
		return keyLess(children[i].Key, children[j].Key)
	})

	return children, nil
}

// Events subscribes to the change events of a collection.
func (t *RedisTree) Events(ctx context.Context, collection string) (Stream, error) {
	if !ValidCollection(collection) {
		return nil, errors.Wrapf(ErrInvalidPath, "%q", collection)
	}

	ps := t.rdb.Subscribe(ctx, t.channel(collection))
	// Wait for the confirmation so that nothing published after Events
	// returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrapf(err, "mirror: subscribe %s", collection)
	}

	s := &redisStream{ps: ps, ch: make(chan Event, streamBuffer), done: make(chan struct{})}
	go s.pump(ps.Channel())
	return s, nil
}

func (t *RedisTree) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "mirror: marshal event")
	}
	if err := t.rdb.Publish(ctx, t.channel(ev.Path), payload).Err(); err != nil {
		return errors.Wrapf(err, "mirror: publish %s on %s/%s", ev.Type, ev.Path, ev.Key)
	}
	return nil
}

type redisStream struct {
	ps   *redis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisStream) C() <-chan Event { return s.ch }

func (s *redisStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

func (s *redisStream) pump(msgs <-chan *redis.Message) {
	defer close(s.ch)
	for msg := range msgs {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			jww.WARN.Printf("mirror: dropping undecodable event on %s: %v", msg.Channel, err)
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}

// keyLess orders numeric keys numerically and everything else lexically.
func keyLess(a, b string) bool {
	na, errA := strconv.ParseUint(a, 10, 64)
	nb, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
