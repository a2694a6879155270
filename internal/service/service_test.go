package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"echosphere/internal/mirror"
	"echosphere/internal/mirror/mirrortest"
	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/replication"
	"echosphere/internal/repository"
	"echosphere/internal/repository/repotest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	repos    repository.Repositories
	uow      repository.UnitOfWork
	tree     *mirrortest.Flaky
	repl     replication.Replicator
	rooms    ChatRoomService
	messages MessageService
	users    UserService
	friends  FriendService
	realtime RealtimeService
	posts    PostService
	tokens   *auth.TokenManager
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, func(tree mirror.Tree) replication.Replicator { return replication.NewDirect(tree) })
}

func newFixtureWith(t *testing.T, replicator func(mirror.Tree) replication.Replicator) *fixture {
	t.Helper()

	db := repotest.NewDB(t)
	rdb, _ := repotest.NewRedis(t)

	f := &fixture{
		db:     db,
		repos:  repository.NewRepositories(db),
		uow:    repository.NewUnitOfWork(db),
		tree:   mirrortest.NewFlaky(mirror.NewRedisTree(rdb, "test")),
		tokens: auth.NewTokenManager("test-key", time.Hour),
	}
	f.repl = replicator(f.tree)
	f.rooms = NewChatRoomService(f.repos, f.uow, f.repl)
	f.messages = NewMessageService(f.repos, f.uow, f.repl)
	f.users = NewUserService(f.repos, f.uow, f.repl, f.tokens)
	f.friends = NewFriendService(f.repos, f.uow, f.repl)
	f.realtime = NewRealtimeService(f.repos, f.tree, repository.NewPresenceRepository(rdb, "test"))
	f.posts = NewPostService(f.repos, f.uow)
	return f
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	return repotest.CreateUser(t, f.db, name)
}

func (f *fixture) mirrorRoom(t *testing.T, id uint) (model.MirrorChatRoom, bool) {
	t.Helper()
	raw, ok, err := f.tree.Get(context.Background(), mirror.Path(model.MirrorChatRooms, id))
	require.NoError(t, err)
	var doc model.MirrorChatRoom
	if ok {
		require.NoError(t, json.Unmarshal(raw, &doc))
	}
	return doc, ok
}

func (f *fixture) mirrorMessage(t *testing.T, id uint) (model.MirrorMessage, bool) {
	t.Helper()
	raw, ok, err := f.tree.Get(context.Background(), mirror.Path(model.MirrorMessages, id))
	require.NoError(t, err)
	var doc model.MirrorMessage
	if ok {
		require.NoError(t, json.Unmarshal(raw, &doc))
	}
	return doc, ok
}

// room creates a group chat owned by owner with the given members.
func (f *fixture) room(t *testing.T, owner *model.User, name string, members ...*model.User) *ChatRoomView {
	t.Helper()
	ids := []uint{owner.ID}
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	view, err := f.rooms.Create(context.Background(), owner.ID, name, ids)
	require.NoError(t, err)
	return view
}

func requireKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}
