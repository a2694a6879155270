package handler

import (
	"context"
	"net/http"
	"strconv"

	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"
	"echosphere/internal/service"
	"echosphere/internal/ws"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jww "github.com/spf13/jwalterweatherman"
)

type RealtimeHandler struct {
	realtime service.RealtimeService
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	tokens   *auth.TokenManager
}

// NewRealtimeHandler serves mirror subscriptions over websocket via hub.
func NewRealtimeHandler(realtime service.RealtimeService, hub *ws.Hub, upgrader *websocket.Upgrader, tokens *auth.TokenManager) *RealtimeHandler {
	return &RealtimeHandler{realtime: realtime, hub: hub, upgrader: upgrader, tokens: tokens}
}

func (h *RealtimeHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/realtime/subscribe", h.subscribe).Methods("GET")
	router.HandleFunc("/realtime/value", h.value).Methods("GET", "OPTIONS")
}

func queryFrom(r *http.Request) mirror.Query {
	q := r.URL.Query()
	return mirror.Query{
		Path:    q.Get("path"),
		OrderBy: q.Get("orderBy"),
		EqualTo: q.Get("equalTo"),
	}
}

// @Summary Subscribe to a mirror query
// @Description Websocket stream of child_added, child_changed and child_removed events. The matching snapshot arrives first as child_added events.
// @Tags realtime
// @Param path query string true "Collection (chatRooms or messages)"
// @Param orderBy query string false "Filter field"
// @Param equalTo query string false "Filter value"
// @Param token query string false "Bearer token when headers cannot be set"
// @Success 101
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /realtime/subscribe [get]
func (h *RealtimeHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	q, err := h.realtime.Authorize(r.Context(), userID, queryFrom(r))
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		jww.WARN.Printf("realtime: upgrade failed for user %d: %v", userID, err)
		return
	}
	defer conn.Close()

	// The request context ends with the handler; the subscription lives
	// exactly as long as the connection.
	ctx := context.WithoutCancel(r.Context())
	client := ws.NewClient(ctx, conn, userID, q)
	if err := h.hub.Subscribe(ctx, client); err != nil {
		jww.ERROR.Printf("realtime: subscribe %s failed: %v", q.Path, err)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}

	roomID, presence := presenceRoom(q)
	if presence {
		h.realtime.Join(ctx, roomID, userID)
		defer h.realtime.Leave(ctx, roomID, userID)
	}

	go func() {
		if err := client.WritePump(); err != nil {
			jww.DEBUG.Printf("realtime: write pump for user %d: %v", userID, err)
		}
		conn.Close()
	}()

	client.ReadPump()
	h.hub.Unsubscribe(client)
}

// presenceRoom reports the chatroom a message subscription watches.
func presenceRoom(q mirror.Query) (uint, bool) {
	if q.Path != model.MirrorMessages || q.OrderBy != model.MirrorRoomField {
		return 0, false
	}
	id, err := strconv.ParseUint(q.EqualTo, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// @Summary Read a mirror value
// @Description Point read of users/{id}
// @Tags realtime
// @Produce json
// @Param path query string true "Document path"
// @Success 200 {object} model.MirrorUser
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /realtime/value [get]
func (h *RealtimeHandler) value(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r, h.tokens); !ok {
		return
	}

	value, err := h.realtime.Value(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}
