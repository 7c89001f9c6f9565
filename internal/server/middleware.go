package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/ButyrinIA/fritter/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestLogger logs every request and feeds the HTTP metrics, labelled by
// route pattern rather than raw path.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(r.Method, route, ww.Status(), elapsed)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("requestID", middleware.GetReqID(r.Context())),
		)
	})
}

// identity returns the authenticated user id, or "" for anonymous callers.
// A token that fails verification is treated as no token at all.
func (s *Server) identity(r *http.Request) string {
	userID, err := s.issuer.FromRequest(r)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingToken) {
			s.logger.Debug("ignoring bearer token", zap.Error(err))
		}
		return ""
	}
	return userID
}
