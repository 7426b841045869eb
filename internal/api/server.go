package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/hookwave/internal/config"
	"github.com/shohag/hookwave/internal/normalize"
	"github.com/shohag/hookwave/internal/storage"
	"github.com/shohag/hookwave/internal/webhook"
)

type Server struct {
	cfg        *config.Config
	store      storage.Storage
	svc        *webhook.Service
	normalizer *normalize.Normalizer
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg *config.Config, store storage.Storage, svc *webhook.Service, normalizer *normalize.Normalizer, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		svc:        svc,
		normalizer: normalizer,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	evHandler := NewWebhookEventHandler(s.svc, s.store, s.log, s.cfg.Debug)
	chHandler := NewChannelHandler(s.store, s.log, s.cfg.Debug)
	waHandler := NewWhatsAppHandler(s.svc, s.normalizer, normalize.NewResolver(s.store), s.cfg.WhatsApp.SignatureSecret, s.cfg.WhatsApp.VerifyToken, s.log, s.cfg.Debug)

	// Health check — no auth
	r.Get("/health", s.health)

	// Inbound delivery — guarded by its own signature gate, not the admin key
	r.Get("/whatsapp/webhook", waHandler.Verify)
	r.Post("/whatsapp/webhook", waHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.Server.AdminAPIKey))

		r.Route("/webhook-events", func(r chi.Router) {
			r.Get("/", evHandler.List)
			r.Post("/", evHandler.Create)
			r.Post("/bulk-retry", evHandler.BulkRetry)
			r.Get("/ready-for-retry", evHandler.ReadyForRetry)
			r.Get("/statistics", evHandler.Statistics)
			r.Get("/{id}", evHandler.Get)
			r.Put("/{id}", evHandler.Update)
			r.Delete("/{id}", evHandler.Delete)
			r.Post("/{id}/retry", evHandler.Retry)
			r.Get("/{id}/logs", evHandler.Logs)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Post("/", chHandler.Create)
			r.Get("/", chHandler.List)
			r.Get("/{id}", chHandler.Get)
			r.Delete("/{id}", chHandler.Delete)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, http.StatusOK, "ok", map[string]string{"service": "hookwave"})
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
