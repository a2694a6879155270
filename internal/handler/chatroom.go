package handler

import (
	"net/http"

	"echosphere/api/response"
	"echosphere/internal/mirror"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"
	"echosphere/internal/service"

	"github.com/gorilla/mux"
)

type ChatRoomHandler struct {
	rooms    service.ChatRoomService
	messages service.MessageService
	realtime service.RealtimeService
	tokens   *auth.TokenManager
}

func NewChatRoomHandler(rooms service.ChatRoomService, messages service.MessageService, realtime service.RealtimeService, tokens *auth.TokenManager) *ChatRoomHandler {
	return &ChatRoomHandler{rooms: rooms, messages: messages, realtime: realtime, tokens: tokens}
}

func (h *ChatRoomHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chatrooms", h.listChatRooms).Methods("GET", "OPTIONS")
	router.HandleFunc("/chatrooms", h.createChatRoom).Methods("POST", "OPTIONS")
	router.HandleFunc("/chatrooms", h.renameChatRoom).Methods("PATCH", "OPTIONS")
	router.HandleFunc("/chatrooms", h.leaveChatRoom).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}", h.getMessages).Methods("GET", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}", h.sendMessage).Methods("POST", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}", h.editMessage).Methods("PATCH", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}", h.deleteMessageOrRoom).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}/participants", h.listParticipants).Methods("GET", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}/participants", h.addParticipants).Methods("POST", "OPTIONS")
	router.HandleFunc("/chatrooms/{id}/online", h.online).Methods("GET", "OPTIONS")
}

// @Summary List chatrooms
// @Description Chatrooms of the caller with their participants and latest message
// @Tags chatrooms
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.ChatRoomSummary
// @Failure 401 {object} response.ErrorResponse
// @Router /chatrooms [get]
func (h *ChatRoomHandler) listChatRooms(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	rooms, err := h.rooms.List(r.Context(), userID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, rooms)
}

type CreateChatRoomRequest struct {
	Name         string      `json:"name"`
	Participants []mirror.ID `json:"participants"`
}

// @Summary Create chatroom
// @Description Create a group chatroom; the caller is always a participant
// @Tags chatrooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body CreateChatRoomRequest true "Chatroom"
// @Success 201 {object} service.ChatRoomView
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms [post]
func (h *ChatRoomHandler) createChatRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request CreateChatRoomRequest
	if !decode(w, r, &request) {
		return
	}

	room, err := h.rooms.Create(r.Context(), userID, request.Name, mirror.IDs(request.Participants))
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, room)
}

type RenameChatRoomRequest struct {
	ID   mirror.ID `json:"id"`
	Name string    `json:"name"`
}

// @Summary Rename chatroom
// @Tags chatrooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body RenameChatRoomRequest true "Chatroom"
// @Success 200 {object} service.ChatRoomView
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms [patch]
func (h *ChatRoomHandler) renameChatRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request RenameChatRoomRequest
	if !decode(w, r, &request) {
		return
	}

	room, err := h.rooms.Rename(r.Context(), userID, uint(request.ID), request.Name)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, room)
}

type ChatRoomIDRequest struct {
	ID mirror.ID `json:"id"`
}

// @Summary Leave chatroom
// @Tags chatrooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body ChatRoomIDRequest true "Chatroom"
// @Success 200 {object} response.MessageResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms [delete]
func (h *ChatRoomHandler) leaveChatRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request ChatRoomIDRequest
	if !decode(w, r, &request) {
		return
	}

	if err := h.rooms.Leave(r.Context(), userID, uint(request.ID)); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, response.MessageResponse{Message: "Left chatroom successfully"})
}

// @Summary Get messages
// @Description Messages of a chatroom in creation order
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Success 200 {object} service.Conversation
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms/{id} [get]
func (h *ChatRoomHandler) getMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	conversation, err := h.messages.Fetch(r.Context(), userID, roomID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, conversation)
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

// @Summary Send message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Param data body SendMessageRequest true "Message"
// @Success 200 {object} service.MessageView
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /chatrooms/{id} [post]
func (h *ChatRoomHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request SendMessageRequest
	if !decode(w, r, &request) {
		return
	}

	msg, err := h.messages.Send(r.Context(), userID, roomID, request.Message)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, msg)
}

type EditMessageRequest struct {
	MessageID     mirror.ID `json:"messageId"`
	EditedMessage string    `json:"editedMessage"`
}

type EditMessageResponse struct {
	Success        bool `json:"success"`
	UpdatedMessage any  `json:"updatedMessage"`
}

// @Summary Edit message
// @Description Only the sender may edit a message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Param data body EditMessageRequest true "Edit"
// @Success 200 {object} EditMessageResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /chatrooms/{id} [patch]
func (h *ChatRoomHandler) editMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request EditMessageRequest
	if !decode(w, r, &request) {
		return
	}

	msg, err := h.messages.Edit(r.Context(), userID, roomID, uint(request.MessageID), request.EditedMessage)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, EditMessageResponse{Success: true, UpdatedMessage: msg})
}

type DeleteRequest struct {
	MessageID  mirror.ID `json:"messageId"`
	DeleteRoom bool      `json:"deleteRoom"`
}

// @Summary Delete message or chatroom
// @Description With a messageId the sender deletes that message. With deleteRoom set a participant deletes the whole chatroom. A body with neither is rejected.
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Param data body DeleteRequest true "Message or room"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms/{id} [delete]
func (h *ChatRoomHandler) deleteMessageOrRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request DeleteRequest
	if !decode(w, r, &request) {
		return
	}

	if request.DeleteRoom {
		if request.MessageID != 0 {
			httputils.ResponseError(w, http.StatusBadRequest, "Specify either messageId or deleteRoom, not both")
			return
		}
		if err := h.rooms.Delete(r.Context(), userID, roomID); err != nil {
			httputils.ResponseServiceError(w, err)
			return
		}
		httputils.ResponseJSON(w, http.StatusOK, response.SuccessResponse{Success: true, Message: "Chatroom deleted successfully"})
		return
	}

	if err := h.messages.Delete(r.Context(), userID, roomID, uint(request.MessageID)); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, response.SuccessResponse{Success: true, Message: "Message deleted successfully"})
}

type ParticipantsResponse struct {
	Participants any `json:"participants"`
}

// @Summary List participants
// @Tags chatrooms
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Success 200 {object} ParticipantsResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms/{id}/participants [get]
func (h *ChatRoomHandler) listParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	participants, err := h.rooms.Participants(r.Context(), userID, roomID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, ParticipantsResponse{Participants: participants})
}

type AddParticipantsRequest struct {
	Participants []mirror.ID `json:"participants"`
}

// @Summary Add participants
// @Tags chatrooms
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Param data body AddParticipantsRequest true "Participants"
// @Success 200 {object} response.MessageResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /chatrooms/{id}/participants [post]
func (h *ChatRoomHandler) addParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request AddParticipantsRequest
	if !decode(w, r, &request) {
		return
	}

	if err := h.rooms.AddParticipants(r.Context(), userID, roomID, mirror.IDs(request.Participants)); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, response.MessageResponse{Message: "Participants added successfully"})
}

type OnlineResponse struct {
	Online []uint `json:"online"`
}

// @Summary Online participants
// @Description Participants currently subscribed to the chatroom's messages
// @Tags chatrooms
// @Produce json
// @Security BearerAuth
// @Param id path int true "Chatroom ID"
// @Success 200 {object} OnlineResponse
// @Failure 403 {object} response.ErrorResponse
// @Router /chatrooms/{id}/online [get]
func (h *ChatRoomHandler) online(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	online, err := h.realtime.Online(r.Context(), userID, roomID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, OnlineResponse{Online: online})
}
