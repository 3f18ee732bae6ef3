package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/tutor-quest/internal/config"
	"github.com/terra-clan/tutor-quest/internal/content"
	"github.com/terra-clan/tutor-quest/internal/health"
	"github.com/terra-clan/tutor-quest/internal/metrics"
	"github.com/terra-clan/tutor-quest/internal/quest"
)

// Server represents the HTTP API server
type Server struct {
	config  config.ServerConfig
	router  *chi.Mux
	quests  quest.Manager
	quest   *content.Quest
	health  *health.Registry
	metrics *metrics.Metrics
	admin   *AdminGuard
}

// NewServer creates a new API server
func NewServer(
	cfg config.ServerConfig,
	adminCfg config.AdminConfig,
	manager quest.Manager,
	q *content.Quest,
	registry *health.Registry,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		config:  cfg,
		quests:  manager,
		quest:   q,
		health:  registry,
		metrics: m,
		admin:   NewAdminGuard(adminCfg),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)

	allowedOrigins := s.config.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Admin-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived action channel, kept out of the request timeout
		r.Get("/sessions/{token}/ws", s.handleSessionWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Catalog (public)
			r.Route("/catalog", func(r chi.Router) {
				r.Get("/questions", s.handleListQuestions)
				r.Get("/items", s.handleListItems)
				r.Get("/avatars", s.handleListAvatars)
				r.Get("/rules", s.handleGetRules)
			})

			// Sessions (public, token in URL)
			r.Post("/sessions", s.handleStartSession)
			r.Get("/sessions/{token}", s.handleGetSession)
			r.Post("/sessions/{token}/answer", s.handleAnswer)
			r.Post("/sessions/{token}/back", s.handleBack)
			r.Post("/sessions/{token}/advance", s.handleAdvance)
			r.Post("/sessions/{token}/purchase", s.handlePurchase)
			r.Put("/sessions/{token}/identity", s.handleUpdateIdentity)
			r.Put("/sessions/{token}/avatar", s.handleChooseAvatar)
			r.Post("/sessions/{token}/flag", s.handleToggleFlag)
			r.Post("/sessions/{token}/resume", s.handleResume)
			r.Post("/sessions/{token}/reset", s.handleReset)
			r.Post("/sessions/{token}/submit", s.handleSubmit)

			// Admin (shared secret)
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.admin.Protect)

				r.Get("/sessions", s.handleListSessions)
				r.Route("/submissions", func(r chi.Router) {
					r.Get("/", s.handleListSubmissions)
					r.Delete("/", s.handleClearSubmissions)
					r.Get("/export.csv", s.handleExportCSV)
					r.Get("/grades", s.handleGrades)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
