package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"echosphere/internal/pkg/auth"
	"echosphere/internal/pkg/httputils"

	"github.com/gorilla/mux"
)

type PongResponse struct {
	Message string `json:"message"`
}

// Ping
// @Summary Ping the server
// @Tags system
// @Produce json
// @Success 200 {object} PongResponse
// @Router /ping [get]
func Ping(w http.ResponseWriter, r *http.Request) {
	httputils.ResponseJSON(w, http.StatusOK, PongResponse{Message: "Pong"})
}

// Check tests one backing service.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// @Summary Health check
// @Description Pings each backing store
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	httputils.ResponseJSON(w, status, resp)
}

// currentUser authenticates the request, answering 401 itself on failure.
func currentUser(w http.ResponseWriter, r *http.Request, tokens *auth.TokenManager) (uint, bool) {
	userID, err := tokens.Authenticate(r)
	if err != nil {
		httputils.ResponseError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return userID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil || id == 0 {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputils.DecodeJSON(r, dst); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid request format")
		return false
	}
	return true
}
