package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const presenceTTL = 30 * time.Minute

// PresenceRepository tracks which users hold an open message subscription
// on a chatroom. Entries expire on their own if a node dies without
// cleaning up.
type PresenceRepository interface {
	Join(ctx context.Context, roomID, userID uint) error
	// Leave removes the user and returns how many remain online.
	Leave(ctx context.Context, roomID, userID uint) (int64, error)
	Online(ctx context.Context, roomID uint) ([]uint, error)
}

type presenceRepository struct {
	rdb    *redis.Client
	prefix string
}

// NewPresenceRepository keeps room presence in Redis sets under prefix.
func NewPresenceRepository(rdb *redis.Client, prefix string) PresenceRepository {
	return &presenceRepository{rdb: rdb, prefix: prefix}
}

func (r *presenceRepository) key(roomID uint) string {
	return fmt.Sprintf("%s:presence:%d", r.prefix, roomID)
}

func (r *presenceRepository) Join(ctx context.Context, roomID, userID uint) error {
	if roomID == 0 || userID == 0 {
		return errors.New("roomID and userID cannot be zero")
	}

	key := r.key(roomID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, userID)
		pipe.Expire(ctx, key, presenceTTL)
		return nil
	})
	return errors.Wrap(err, "failed to record presence")
}

func (r *presenceRepository) Leave(ctx context.Context, roomID, userID uint) (int64, error) {
	key := r.key(roomID)
	if err := r.rdb.SRem(ctx, key, userID).Err(); err != nil {
		return 0, errors.Wrap(err, "failed to clear presence")
	}

	count, err := r.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count presence")
	}
	return count, nil
}

func (r *presenceRepository) Online(ctx context.Context, roomID uint) ([]uint, error) {
	members, err := r.rdb.SMembers(ctx, r.key(roomID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read presence")
	}

	users := make([]uint, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseUint(member, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, uint(id))
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}
