package rest

import (
	"io"
	"net/http"

	"github.com/disgoorg/disgo/httpserver"
	"go.uber.org/zap"
)

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	// VerifyRequest restores the body after reading it
	if s.verify && !httpserver.VerifyRequest(r, s.publicKey) {
		s.logger.Warn("Rejected interaction with invalid signature")
		s.writeError(w, http.StatusUnauthorized, "invalid request signature")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errMalformedBody.Error())
		return
	}

	resp, err := s.deps.Interactions.HandleInteraction(r.Context(), body)
	if err != nil {
		s.logger.Warn("Failed to handle interaction", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}
