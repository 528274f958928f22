package rest

import (
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes an error body with the given status.
func (s *Server) writeError(w http.ResponseWriter, status int, message string, details ...string) {
	s.writeJSON(w, status, errorResponse{Error: message, Details: details})
}
