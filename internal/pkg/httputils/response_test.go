package httputils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"echosphere/api/response"
	"echosphere/internal/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Message
}

func TestResponseServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", &service.Error{Kind: service.ErrValidation, Msg: "name is required"}, http.StatusBadRequest, "name is required"},
		{"forbidden", errors.WithStack(&service.Error{Kind: service.ErrForbidden, Msg: "not a participant"}), http.StatusForbidden, "not a participant"},
		{"not found", &service.Error{Kind: service.ErrNotFound, Msg: "chatroom not found"}, http.StatusNotFound, "chatroom not found"},
		{"mirror", &service.Error{Kind: service.ErrMirror, Msg: "failed to update message in realtime store"}, http.StatusInternalServerError, "failed to update message in realtime store"},
		{"store", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ResponseServiceError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantMsg, decodeError(t, rr))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		ID uint `json:"id"`
	}

	r := httptest.NewRequest("DELETE", "/chatrooms", strings.NewReader(`{"id": 5}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, uint(5), dst.ID)

	r = httptest.NewRequest("DELETE", "/chatrooms", nil)
	assert.NoError(t, DecodeJSON(r, &dst))

	r = httptest.NewRequest("DELETE", "/chatrooms", strings.NewReader(`{"id":`))
	assert.Error(t, DecodeJSON(r, &dst))
}
