package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"echosphere/internal/handler"
	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/replication"
	"echosphere/internal/repository"
	"echosphere/internal/repository/repotest"
	"echosphere/internal/service"
	"echosphere/internal/ws"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testAPI struct {
	router *mux.Router
	db     *gorm.DB
	tree   mirror.Tree
	tokens *auth.TokenManager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := repotest.NewDB(t)
	rdb, _ := repotest.NewRedis(t)
	tree := mirror.NewRedisTree(rdb, "test")
	repos := repository.NewRepositories(db)
	uow := repository.NewUnitOfWork(db)
	repl := replication.NewDirect(tree)
	tokens := auth.NewTokenManager("test-key", time.Hour)

	realtime := service.NewRealtimeService(repos, tree, repository.NewPresenceRepository(rdb, "test"))
	hub := ws.NewHub(tree)
	t.Cleanup(hub.Shutdown)

	router := mux.NewRouter()
	handler.NewUserHandler(service.NewUserService(repos, uow, repl, tokens), nil, tokens).RegisterRoutes(router)
	handler.NewChatRoomHandler(
		service.NewChatRoomService(repos, uow, repl),
		service.NewMessageService(repos, uow, repl),
		realtime,
		tokens,
	).RegisterRoutes(router)
	handler.NewFriendHandler(service.NewFriendService(repos, uow, repl), tokens).RegisterRoutes(router)
	handler.NewRealtimeHandler(realtime, hub, ws.NewUpgrader(nil), tokens).RegisterRoutes(router)
	handler.NewPostHandler(service.NewPostService(repos, uow), nil, tokens).RegisterRoutes(router)
	router.HandleFunc("/ping", handler.Ping)

	return &testAPI{router: router, db: db, tree: tree, tokens: tokens}
}

func (a *testAPI) login(t *testing.T, name string) (*model.User, string) {
	t.Helper()
	user := repotest.CreateUser(t, a.db, name)
	token, err := a.tokens.GenerateToken(user.ID)
	require.NoError(t, err)
	return user, token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rr, &body)
	return body.Error
}

func TestPing(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Pong"}`, rr.Body.String())
}

func TestSignupAndLogin(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/signup", "", map[string]string{"username": "Alice", "email": "alice@example.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), `"password"`)

	rr = api.do(t, http.MethodPost, "/signup", "", map[string]string{"username": "Alice", "email": "alice@example.com", "password": "pw"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "User already exists", errorMessage(t, rr))

	rr = api.do(t, http.MethodPost, "/login", "", map[string]string{"email": "alice@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, rr.Code)
	var tok handler.TokenResponse
	decodeBody(t, rr, &tok)
	assert.NotEmpty(t, tok.Token)

	rr = api.do(t, http.MethodPost, "/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateChatRoom(t *testing.T) {
	api := newTestAPI(t)
	alice, token := api.login(t, "alice")
	bob := repotest.CreateUser(t, api.db, "bob")

	rr := api.do(t, http.MethodPost, "/chatrooms", "", map[string]any{"name": "Trip", "participants": []uint{bob.ID}})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodPost, "/chatrooms", token, map[string]any{"name": "Trip", "participants": []any{bob.ID, "1", alice.ID}})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	assert.Equal(t, "Trip", room.Name)
	assert.True(t, room.IsGroup)
	assert.Equal(t, []uint{alice.ID, bob.ID}, room.Participants)

	rr = api.do(t, http.MethodPost, "/chatrooms", token, map[string]any{"name": "", "participants": []uint{bob.ID}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Group name and participants are required", errorMessage(t, rr))

	rr = api.do(t, http.MethodPost, "/chatrooms", token, map[string]any{"name": "Ghosts", "participants": []uint{999}})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/chatrooms", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rooms []service.ChatRoomSummary
	decodeBody(t, rr, &rooms)
	require.Len(t, rooms, 1)
	assert.Len(t, rooms[0].Participants, 2)
}

func TestMessageLifecycle(t *testing.T) {
	api := newTestAPI(t)
	_, aliceToken := api.login(t, "alice")
	bob, bobToken := api.login(t, "bob")
	_, malloryToken := api.login(t, "mallory")

	rr := api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Trip", "participants": []uint{bob.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)
	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	roomPath := "/chatrooms/" + mirror.ID(room.ID).String()

	rr = api.do(t, http.MethodPost, roomPath, malloryToken, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodPost, "/chatrooms/999", aliceToken, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodPost, roomPath, aliceToken, map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var sent service.MessageView
	decodeBody(t, rr, &sent)
	assert.Equal(t, "alice", sent.Sender)

	rr = api.do(t, http.MethodPatch, roomPath, bobToken, map[string]any{"messageId": sent.ID, "editedMessage": "mine now"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "You are not authorized to update this message", errorMessage(t, rr))

	rr = api.do(t, http.MethodPatch, roomPath, aliceToken, map[string]any{"messageId": mirror.ID(sent.ID).String(), "editedMessage": "hello all"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"success":true`)

	rr = api.do(t, http.MethodGet, roomPath, bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var conv service.Conversation
	decodeBody(t, rr, &conv)
	assert.Equal(t, "Trip", conv.ChatRoomName)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello all", conv.Messages[0].Message)

	rr = api.do(t, http.MethodDelete, roomPath, aliceToken, map[string]any{"messageId": sent.ID})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Message deleted successfully")

	_, ok, err := api.tree.Get(context.Background(), mirror.Path(model.MirrorMessages, sent.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	rr = api.do(t, http.MethodDelete, roomPath, bobToken, map[string]any{"deleteRoom": true})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Chatroom deleted successfully")

	rr = api.do(t, http.MethodGet, roomPath, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteWithoutTargetKeepsRoom(t *testing.T) {
	api := newTestAPI(t)
	_, aliceToken := api.login(t, "alice")
	bob, _ := api.login(t, "bob")

	rr := api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Trip", "participants": []uint{bob.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)
	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	roomPath := "/chatrooms/" + mirror.ID(room.ID).String()

	rr = api.do(t, http.MethodPost, roomPath, aliceToken, map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, rr.Code)
	var sent service.MessageView
	decodeBody(t, rr, &sent)

	for _, body := range []any{
		map[string]any{},
		map[string]any{"message_id": sent.ID},
		nil,
	} {
		rr = api.do(t, http.MethodDelete, roomPath, aliceToken, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %v", body)
		assert.Equal(t, "Message ID is required", errorMessage(t, rr))
	}

	rr = api.do(t, http.MethodDelete, roomPath, aliceToken, map[string]any{"messageId": sent.ID, "deleteRoom": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var rooms, messages int64
	require.NoError(t, api.db.Model(&model.ChatRoom{}).Count(&rooms).Error)
	require.NoError(t, api.db.Model(&model.Message{}).Count(&messages).Error)
	assert.EqualValues(t, 1, rooms)
	assert.EqualValues(t, 1, messages)

	_, ok, err := api.tree.Get(context.Background(), mirror.Path(model.MirrorChatRooms, room.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = api.tree.Get(context.Background(), mirror.Path(model.MirrorMessages, sent.ID))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRenameAndParticipants(t *testing.T) {
	api := newTestAPI(t)
	_, aliceToken := api.login(t, "alice")
	bob, _ := api.login(t, "bob")
	carol, _ := api.login(t, "carol")
	_, malloryToken := api.login(t, "mallory")

	rr := api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Trip", "participants": []uint{bob.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)
	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	participantsPath := "/chatrooms/" + mirror.ID(room.ID).String() + "/participants"

	rr = api.do(t, http.MethodPatch, "/chatrooms", malloryToken, map[string]any{"id": room.ID, "name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodPatch, "/chatrooms", aliceToken, map[string]any{"id": room.ID, "name": "Road trip"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodPost, participantsPath, aliceToken, map[string]any{"participants": []uint{carol.ID}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, participantsPath, aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Participants []model.UserSummary `json:"participants"`
	}
	decodeBody(t, rr, &body)
	assert.Len(t, body.Participants, 3)

	rr = api.do(t, http.MethodGet, participantsPath, malloryToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodDelete, "/chatrooms", aliceToken, map[string]any{"id": room.ID})
	require.Equal(t, http.StatusOK, rr.Code)

	raw, ok, err := api.tree.Get(context.Background(), mirror.Path(model.MirrorChatRooms, room.ID))
	require.NoError(t, err)
	require.True(t, ok)
	var doc model.MirrorChatRoom
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Road trip", doc.Name)
	assert.Equal(t, []uint{bob.ID, carol.ID}, doc.Participants)
}

func TestFriendFlow(t *testing.T) {
	api := newTestAPI(t)
	alice, aliceToken := api.login(t, "alice")
	bob, bobToken := api.login(t, "bob")

	rr := api.do(t, http.MethodPost, "/friend/request", aliceToken, map[string]any{"receiverId": bob.ID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/friend/request", bobToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pending []service.FriendRequestView
	decodeBody(t, rr, &pending)
	require.Len(t, pending, 1)

	rr = api.do(t, http.MethodPut, "/friend/request", aliceToken, map[string]any{"id": pending[0].ID})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodPut, "/friend/request", bobToken, map[string]any{"id": pending[0].ID})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	assert.Equal(t, "alice, bob", room.Name)
	assert.False(t, room.IsGroup)
	assert.Equal(t, []uint{alice.ID, bob.ID}, room.Participants)

	rr = api.do(t, http.MethodGet, "/friend", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var mine handler.FriendsResponse
	decodeBody(t, rr, &mine)
	assert.Equal(t, []model.UserSummary{{ID: bob.ID, Name: "bob"}}, mine.Friends)

	rr = api.do(t, http.MethodGet, "/users/"+mirror.ID(bob.ID).String()+"/friends", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var theirs handler.FriendsResponse
	decodeBody(t, rr, &theirs)
	assert.Equal(t, []model.UserSummary{{ID: alice.ID, Name: "alice"}}, theirs.Friends)

	rr = api.do(t, http.MethodGet, "/users/999/friends", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(t, http.MethodGet, "/users/1/friends", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRealtimeValue(t *testing.T) {
	api := newTestAPI(t)
	alice, token := api.login(t, "alice")

	path := "/realtime/value?path=" + mirror.Path(model.MirrorUsers, alice.ID)
	rr := api.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, api.tree.Set(context.Background(), mirror.Path(model.MirrorUsers, alice.ID), model.MirrorUser{ID: alice.ID, Name: "alice"}))
	rr = api.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":1,"name":"alice"}`, rr.Body.String())

	rr = api.do(t, http.MethodGet, "/realtime/value?path=messages/1", token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRealtimeSubscribe(t *testing.T) {
	api := newTestAPI(t)
	_, aliceToken := api.login(t, "alice")
	bob, _ := api.login(t, "bob")
	_, malloryToken := api.login(t, "mallory")

	rr := api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Trip", "participants": []uint{bob.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)
	var room service.ChatRoomView
	decodeBody(t, rr, &room)
	roomKey := mirror.ID(room.ID).String()

	rr = api.do(t, http.MethodPost, "/chatrooms/"+roomKey, aliceToken, map[string]string{"message": "first"})
	require.Equal(t, http.StatusOK, rr.Code)

	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/subscribe?path=messages&orderBy=chatRoomId&equalTo=" + roomKey

	_, resp, err := websocket.DefaultDialer.Dial(base+"&token="+malloryToken, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"&token="+aliceToken, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev mirror.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, mirror.ChildAdded, ev.Type)
	assert.Contains(t, string(ev.Value), "first")

	rr = api.do(t, http.MethodPost, "/chatrooms/"+roomKey, aliceToken, map[string]string{"message": "second"})
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, mirror.ChildAdded, ev.Type)
	assert.Contains(t, string(ev.Value), "second")

	rr = api.do(t, http.MethodGet, "/chatrooms/"+roomKey+"/online", aliceToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"online":[1]}`, rr.Body.String())
}

func TestRoomFeedOnlyShowsOwnRooms(t *testing.T) {
	api := newTestAPI(t)
	_, aliceToken := api.login(t, "alice")
	bob, _ := api.login(t, "bob")
	mallory, malloryToken := api.login(t, "mallory")

	rr := api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Secret", "participants": []uint{bob.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)

	srv := httptest.NewServer(api.router)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/subscribe?path=chatRooms&token=" + malloryToken

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	rr = api.do(t, http.MethodPost, "/chatrooms", aliceToken, map[string]any{"name": "Open", "participants": []uint{mallory.ID}})
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev mirror.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, mirror.ChildAdded, ev.Type)
	assert.Contains(t, string(ev.Value), "Open")
	assert.NotContains(t, string(ev.Value), "Secret")
}
