package response

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"error"`
}

// MessageResponse is returned by mutations that have nothing else to say.
type MessageResponse struct {
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
