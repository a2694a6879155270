package handler

import (
	"net/http"

	"echosphere/internal/model"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"
	"echosphere/internal/service"

	"github.com/gorilla/mux"
)

type UserHandler struct {
	userService  service.UserService
	mediaService service.MediaService
	tokens       *auth.TokenManager
}

// NewUserHandler wires the user endpoints. media may be nil when object
// storage is not configured; the avatar endpoints then answer 503.
func NewUserHandler(userService service.UserService, media service.MediaService, tokens *auth.TokenManager) *UserHandler {
	return &UserHandler{userService: userService, mediaService: media, tokens: tokens}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signup", h.signup).Methods("POST", "OPTIONS")
	router.HandleFunc("/login", h.login).Methods("POST", "OPTIONS")
	router.HandleFunc("/users/update", h.updateProfile).Methods("PUT", "OPTIONS")
	router.HandleFunc("/users/avatar", h.uploadAvatar).Methods("PUT", "OPTIONS")
	router.HandleFunc("/users/search/{keyword}", h.searchUsers).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{id}", h.getUser).Methods("GET", "OPTIONS")
	router.HandleFunc("/users/{id}/avatar", h.getAvatar).Methods("GET", "OPTIONS")
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

// @Summary Signup
// @Description Register an account
// @Tags users
// @Accept json
// @Produce json
// @Param data body SignupRequest true "Signup data"
// @Success 201 {object} SignupResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /signup [post]
func (h *UserHandler) signup(w http.ResponseWriter, r *http.Request) {
	var request SignupRequest
	if !decode(w, r, &request) {
		return
	}

	user, err := h.userService.Signup(r.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, SignupResponse{Message: "User created", User: user})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// @Summary Login
// @Description Exchange credentials for a bearer token
// @Tags users
// @Accept json
// @Produce json
// @Param data body LoginRequest true "Login data"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /login [post]
func (h *UserHandler) login(w http.ResponseWriter, r *http.Request) {
	var request LoginRequest
	if !decode(w, r, &request) {
		return
	}

	token, user, err := h.userService.Login(r.Context(), request.Email, request.Password)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, TokenResponse{Token: token, User: user})
}

// @Summary Get user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} model.User
// @Failure 404 {object} response.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), userID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, user)
}

// @Summary Search users
// @Description Search users by name
// @Tags users
// @Produce json
// @Param keyword path string true "Search keyword"
// @Success 200 {array} model.UserSummary
// @Failure 400 {object} response.ErrorResponse
// @Router /users/search/{keyword} [get]
func (h *UserHandler) searchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.Search(r.Context(), mux.Vars(r)["keyword"])
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, users)
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// @Summary Update profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body UpdateProfileRequest true "Profile"
// @Success 200 {object} model.User
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /users/update [put]
func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request UpdateProfileRequest
	if !decode(w, r, &request) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, request.Name, request.Bio)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, user)
}

// @Summary Upload avatar
// @Tags users
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 200 {object} model.FileMetadata
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /users/avatar [put]
func (h *UserHandler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	if h.mediaService == nil {
		httputils.ResponseError(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarSize+1<<20)
	if err := r.ParseMultipartForm(service.MaxAvatarSize); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	meta, err := h.mediaService.UploadAvatar(r.Context(), userID, file, header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, meta)
}

type AvatarResponse struct {
	URL string `json:"url"`
}

// @Summary Avatar URL
// @Description Short-lived download link for a user's avatar
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} AvatarResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /users/{id}/avatar [get]
func (h *UserHandler) getAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if h.mediaService == nil {
		httputils.ResponseError(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	url, err := h.mediaService.AvatarURL(r.Context(), userID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, AvatarResponse{URL: url})
}
