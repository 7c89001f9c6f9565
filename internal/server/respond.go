package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ButyrinIA/fritter/internal/gate"
	"github.com/ButyrinIA/fritter/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encoding response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) respondFailure(w http.ResponseWriter, f *gate.Failure) {
	s.metrics.GateRejected(f.Check, f.Status)
	s.respondJSON(w, f.Status, f.Body())
}

// respondInternal logs err and hides it from the client. A record that
// vanished between the checks and the write is still reported as 404.
func (s *Server) respondInternal(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "The requested record no longer exists.")
		return
	}
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	s.respondError(w, http.StatusInternalServerError, "Internal server error.")
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dst)
}
