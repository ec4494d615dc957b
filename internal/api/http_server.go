package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ReadyCheck reports whether a backing dependency is usable.
type ReadyCheck func(ctx context.Context) error

type Dependencies struct {
	Cfg      config.APIConfig
	Handlers *Handlers
	Auth     Authenticator
	Ready    map[string]ReadyCheck
	Logger   *zerolog.Logger
}

func NewRouter(deps Dependencies) http.Handler {
	h := deps.Handlers
	h.validate = validator.New()
	if h.Auth == nil {
		h.Auth = deps.Auth
	}
	if h.Logger == nil {
		h.Logger = deps.Logger
	}
	limiter := newRateLimiter(deps.Cfg.RateLimit)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Logger))
	r.Use(CORSMiddleware(CORSOptions{AllowedOrigins: deps.Cfg.CORS.AllowedOrigins}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyHandler(deps.Ready))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(OptionalSession(deps.Auth))
			r.Use(rateLimit(limiter))
			r.Get("/navigation", h.Navigation)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireSession(deps.Auth))
			r.Use(rateLimit(limiter))

			r.Get("/me", h.Me)
			r.Delete("/session", h.Logout)

			r.Get("/bookings", h.ListBookings)
			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings/{id}", h.GetBooking)
			r.Post("/bookings/{id}/status", h.SetBookingStatus)
			r.Post("/bookings/{id}/cancel", h.CancelBooking)
			r.Post("/bookings/{id}/complete", h.CompleteBooking)

			r.Get("/disputes", h.ListDisputes)
			r.Post("/disputes", h.CreateDispute)
			r.Patch("/disputes/{id}", h.UpdateDispute)

			r.Get("/wallet-verifications", h.ListWallet)
			r.Post("/wallet-verifications", h.SubmitWallet)
			r.Post("/wallet-verifications/{id}/confirm", h.ConfirmWallet)
			r.Post("/wallet-verifications/{id}/reject", h.RejectWallet)

			r.Get("/realtime", h.Realtime)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(models.RoleAdmin))
				r.Get("/bookings/export", h.ExportBookings)
				r.Get("/profiles", h.ListProfiles)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

func readyHandler(checks map[string]ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		writeJSON(w, status, map[string]any{"checks": result})
	}
}

// HTTPServer runs the API listener.
type HTTPServer struct {
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIHTTPConfig, handler http.Handler, logger *zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       config.Duration(cfg.ReadTimeout),
			WriteTimeout:      config.Duration(cfg.WriteTimeout),
		},
		logger: logger,
	}
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
