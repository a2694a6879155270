package handler

import (
	"net/http"

	"echosphere/api/response"
	"echosphere/internal/mirror"
	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"
	"echosphere/internal/service"

	"github.com/gorilla/mux"
)

type FriendHandler struct {
	friends service.FriendService
	tokens  *auth.TokenManager
}

func NewFriendHandler(friends service.FriendService, tokens *auth.TokenManager) *FriendHandler {
	return &FriendHandler{friends: friends, tokens: tokens}
}

func (h *FriendHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/friend", h.listFriends).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{id}/friends", h.userFriends).Methods("GET", "OPTIONS")
	router.HandleFunc("/friend/request", h.sendRequest).Methods("POST", "OPTIONS")
	router.HandleFunc("/friend/request", h.pendingRequests).Methods("GET", "OPTIONS")
	router.HandleFunc("/friend/request", h.acceptRequest).Methods("PUT", "OPTIONS")
	router.HandleFunc("/friend/request", h.rejectRequest).Methods("DELETE", "OPTIONS")
}

type FriendRequestBody struct {
	ReceiverID mirror.ID `json:"receiverId"`
}

type FriendRequestIDBody struct {
	ID mirror.ID `json:"id"`
}

// @Summary Send friend request
// @Tags friends
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body FriendRequestBody true "Receiver"
// @Success 201 {object} response.MessageResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /friend/request [post]
func (h *FriendHandler) sendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request FriendRequestBody
	if !decode(w, r, &request) {
		return
	}

	if err := h.friends.SendRequest(r.Context(), userID, uint(request.ReceiverID)); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, response.MessageResponse{Message: "Friend request sent"})
}

// @Summary Pending friend requests
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.FriendRequestView
// @Failure 401 {object} response.ErrorResponse
// @Router /friend/request [get]
func (h *FriendHandler) pendingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	requests, err := h.friends.PendingRequests(r.Context(), userID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, requests)
}

// @Summary Accept friend request
// @Description Befriends both users and opens a direct chatroom
// @Tags friends
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body FriendRequestIDBody true "Request"
// @Success 200 {object} service.ChatRoomView
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /friend/request [put]
func (h *FriendHandler) acceptRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request FriendRequestIDBody
	if !decode(w, r, &request) {
		return
	}

	room, err := h.friends.Accept(r.Context(), userID, uint(request.ID))
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, room)
}

// @Summary Reject friend request
// @Tags friends
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body FriendRequestIDBody true "Request"
// @Success 200 {object} response.MessageResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /friend/request [delete]
func (h *FriendHandler) rejectRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request FriendRequestIDBody
	if !decode(w, r, &request) {
		return
	}

	if err := h.friends.Reject(r.Context(), userID, uint(request.ID)); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, response.MessageResponse{Message: "Friend request rejected"})
}

// FriendsResponse lists friends as user summaries.
type FriendsResponse struct {
	Friends []model.UserSummary `json:"friends"`
}

// @Summary List friends
// @Description Users the caller is friends with
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Success 200 {object} FriendsResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /friend [get]
func (h *FriendHandler) listFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	h.respondFriends(w, r, userID)
}

// @Summary List a user's friends
// @Tags friends
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} FriendsResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /users/{id}/friends [get]
func (h *FriendHandler) userFriends(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r, h.tokens); !ok {
		return
	}
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	h.respondFriends(w, r, userID)
}

func (h *FriendHandler) respondFriends(w http.ResponseWriter, r *http.Request, userID uint) {
	friends, err := h.friends.Friends(r.Context(), userID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, FriendsResponse{Friends: friends})
}
