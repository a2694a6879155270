package httputils

import (
	"encoding/json"
	"io"
	"net/http"

	"echosphere/api/response"
	"echosphere/internal/service"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

func ResponseError(w http.ResponseWriter, errorCode int, errorMessage string) {
	ResponseJSON(w, errorCode, response.ErrorResponse{
		Message: errorMessage,
	})
}

func ResponseJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		jww.ERROR.Printf("Failed to encode JSON response: %v", err)
	}
}

// ResponseServiceError maps a service error onto its status. Store
// failures become a generic 500 so callers never see driver detail.
func ResponseServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	msg := "internal server error"
	var se *service.Error
	if errors.As(err, &se) && (status != http.StatusInternalServerError || se.Kind == service.ErrMirror) {
		msg = se.Msg
	}

	if status >= http.StatusInternalServerError {
		jww.ERROR.Printf("request failed: %+v", err)
	}

	ResponseError(w, status, msg)
}

func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes the request body into dst, tolerating an empty body.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 && r.Header.Get("Transfer-Encoding") == "" {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errors.Wrap(err, "invalid request format")
	}
	return nil
}
