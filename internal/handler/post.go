package handler

import (
	"net/http"
	"strconv"

	"echosphere/api/response"
	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"
	"echosphere/internal/service"

	"github.com/gorilla/mux"
)

type PostHandler struct {
	posts  service.PostService
	media  service.MediaService
	tokens *auth.TokenManager
}

// NewPostHandler takes a nil media service when object storage is not
// configured; media uploads and links then answer 503.
func NewPostHandler(posts service.PostService, media service.MediaService, tokens *auth.TokenManager) *PostHandler {
	return &PostHandler{posts: posts, media: media, tokens: tokens}
}

// RegisterRoutes mounts the /posts endpoints on router.
func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/posts", h.feed).Methods("GET", "OPTIONS")
	router.HandleFunc("/posts", h.create).Methods("POST", "OPTIONS")
	router.HandleFunc("/posts/media", h.uploadMedia).Methods("POST", "OPTIONS")
	router.HandleFunc("/posts/explore", h.explore).Methods("GET", "OPTIONS")
	router.HandleFunc("/posts/user", h.byUser).Methods("GET", "OPTIONS")
	router.HandleFunc("/posts/search/{keyword}", h.search).Methods("GET", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}", h.get).Methods("GET", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}", h.update).Methods("PUT", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}", h.delete).Methods("DELETE", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}/like", h.like).Methods("POST", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}/comment", h.comment).Methods("POST", "OPTIONS")
	router.HandleFunc("/posts/{id:[0-9]+}/media", h.mediaURL).Methods("GET", "OPTIONS")
}

type PostRequest struct {
	Content    *string `json:"content"`
	MediaKey   *string `json:"mediaKey"`
	Visibility *string `json:"visibility" enums:"public,friends-only,private"`
}

func (p PostRequest) input() service.PostInput {
	return service.PostInput{Content: p.Content, MediaKey: p.MediaKey, Visibility: p.Visibility}
}

type CommentRequest struct {
	Content string `json:"content"`
}

type MediaUploadResponse struct {
	MediaKey string `json:"mediaKey"`
}

// pageFrom reads page, pageSize and order from the query string. Bad
// numbers fall back to the service defaults.
func pageFrom(r *http.Request) service.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return service.PageRequest{Page: page, PageSize: size, Ascending: q.Get("order") == "asc"}
}

// @Summary Create post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param data body PostRequest true "Post"
// @Success 201 {object} service.PostView
// @Failure 400 {object} response.ErrorResponse
// @Failure 401 {object} response.ErrorResponse
// @Router /posts [post]
func (h *PostHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	var request PostRequest
	if !decode(w, r, &request) {
		return
	}

	post, err := h.posts.Create(r.Context(), userID, request.input())
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, post)
}

// @Summary Feed
// @Description Posts visible to the caller, newest first
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param order query string false "asc or desc"
// @Success 200 {object} service.PostPage
// @Failure 401 {object} response.ErrorResponse
// @Router /posts [get]
func (h *PostHandler) feed(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	h.respondPage(w)(h.posts.Feed(r.Context(), userID, pageFrom(r)))
}

// @Summary Explore
// @Description Public posts from everyone
// @Tags posts
// @Produce json
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} service.PostPage
// @Router /posts/explore [get]
func (h *PostHandler) explore(w http.ResponseWriter, r *http.Request) {
	h.respondPage(w)(h.posts.Explore(r.Context(), pageFrom(r)))
}

// @Summary Posts by user
// @Description Defaults to the caller's own posts
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param userId query int false "Author ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} service.PostPage
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/user [get]
func (h *PostHandler) byUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}

	authorID := userID
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			httputils.ResponseError(w, http.StatusBadRequest, "Invalid userId")
			return
		}
		authorID = uint(id)
	}

	h.respondPage(w)(h.posts.ByUser(r.Context(), userID, authorID, pageFrom(r)))
}

// @Summary Search posts
// @Description Matches post content or author name
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param keyword path string true "Keyword"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param order query string false "asc or desc"
// @Success 200 {object} service.PostPage
// @Failure 400 {object} response.ErrorResponse
// @Router /posts/search/{keyword} [get]
func (h *PostHandler) search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	h.respondPage(w)(h.posts.Search(r.Context(), userID, mux.Vars(r)["keyword"], pageFrom(r)))
}

func (h *PostHandler) respondPage(w http.ResponseWriter) func(*service.PostPage, error) {
	return func(page *service.PostPage, err error) {
		if err != nil {
			httputils.ResponseServiceError(w, err)
			return
		}
		httputils.ResponseJSON(w, http.StatusOK, page)
	}
}

// @Summary Get post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} service.PostView
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/{id} [get]
func (h *PostHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	post, err := h.posts.Get(r.Context(), userID, postID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, post)
}

// @Summary Update post
// @Description Only the author may edit; omitted fields stay unchanged
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param data body PostRequest true "Fields to change"
// @Success 200 {object} service.PostView
// @Failure 400 {object} response.ErrorResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/{id} [put]
func (h *PostHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request PostRequest
	if !decode(w, r, &request) {
		return
	}

	post, err := h.posts.Update(r.Context(), userID, postID, request.input())
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, post)
}

// @Summary Delete post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} response.MessageResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/{id} [delete]
func (h *PostHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.posts.Delete(r.Context(), userID, postID); err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, response.MessageResponse{Message: "Post deleted successfully"})
}

// @Summary Like or unlike post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} service.LikeResult
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/{id}/like [post]
func (h *PostHandler) like(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.posts.ToggleLike(r.Context(), userID, postID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, result)
}

// @Summary Comment on post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Param data body CommentRequest true "Comment"
// @Success 201 {object} service.CommentResult
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /posts/{id}/comment [post]
func (h *PostHandler) comment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var request CommentRequest
	if !decode(w, r, &request) {
		return
	}

	result, err := h.posts.Comment(r.Context(), userID, postID, request.Content)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, result)
}

// @Summary Upload post media
// @Description Stores an image or video; pass the returned key as mediaKey when creating a post
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image or video"
// @Success 201 {object} MediaUploadResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /posts/media [post]
func (h *PostHandler) uploadMedia(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	if h.media == nil {
		httputils.ResponseError(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxPostMediaSize+1<<20)
	if err := r.ParseMultipartForm(service.MaxPostMediaSize); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	meta, err := h.media.UploadPostMedia(r.Context(), userID, file, header.Filename, header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusCreated, MediaUploadResponse{MediaKey: meta.S3Key})
}

// @Summary Post media URL
// @Description Short-lived download link for the media attached to a visible post
// @Tags posts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Post ID"
// @Success 200 {object} AvatarResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /posts/{id}/media [get]
func (h *PostHandler) mediaURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.tokens)
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if h.media == nil {
		httputils.ResponseError(w, http.StatusServiceUnavailable, "File storage is not configured")
		return
	}

	post, err := h.posts.Get(r.Context(), userID, postID)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}
	if post.MediaKey == "" {
		httputils.ResponseError(w, http.StatusNotFound, "Post has no media")
		return
	}

	url, err := h.media.PresignURL(r.Context(), post.MediaKey)
	if err != nil {
		httputils.ResponseServiceError(w, err)
		return
	}

	httputils.ResponseJSON(w, http.StatusOK, AvatarResponse{URL: url})
}
