package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ButyrinIA/fritter/internal/auth"
	"github.com/ButyrinIA/fritter/internal/config"
	"github.com/ButyrinIA/fritter/internal/feed"
	"github.com/ButyrinIA/fritter/internal/gate"
	"github.com/ButyrinIA/fritter/internal/linking"
	"github.com/ButyrinIA/fritter/internal/metrics"
	"github.com/ButyrinIA/fritter/internal/similarity"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Server struct {
	cfg     *config.Config
	storage storage.Storage
	gate    *gate.Gate
	posts   *linking.Orchestrator
	issuer  *auth.Issuer
	hub     *feed.Hub
	logger  *zap.Logger
	metrics *metrics.Collector
	handler http.Handler
}

func New(cfg *config.Config, store storage.Storage, oracle similarity.Oracle, logger *zap.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		storage: store,
		gate:    gate.New(store, store),
		posts:   linking.New(store, oracle, logger, m),
		issuer:  auth.NewIssuer(cfg.Server.JWTSecret, cfg.Server.TokenTTL),
		hub:     feed.NewHub(cfg.Feed.Buffer, logger),
		logger:  logger,
		metrics: m,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)

	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	router.Handle("/metrics", s.metrics.Handler())

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	router.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.createUser)
			r.Patch("/", s.updateUser)
			r.Delete("/", s.deleteUser)
			r.Post("/session", s.signIn)
			r.Delete("/session", s.signOut)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.listPosts)
			r.Post("/", s.createPost)
			r.Get("/feed", s.hub.Handler(upgrader, s.cfg.Feed.WriteTimeout))
			r.Route("/{postID}", func(r chi.Router) {
				r.Get("/", s.getPost)
				r.Put("/", s.updatePost)
				r.Delete("/", s.deletePost)
				r.Get("/expansion", s.getExpansion)
				r.Get("/citations", s.getCitations)
				r.Get("/similar", s.getSimilar)
			})
		})
	})

	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
