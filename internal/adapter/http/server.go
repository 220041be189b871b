package adapthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weighttracker/internal/app"
	"weighttracker/internal/observability"
)

// Options configures optional Server behaviour.
type Options struct {
	// SSO enables the OIDC login routes when non-nil.
	SSO *SSO
	// CORSOrigins lists browser origins allowed to call the API and open
	// the stream. Empty means same-origin only.
	CORSOrigins []string
	// SessionTTL sets the session cookie lifetime.
	SessionTTL time.Duration
	// Metrics defaults to observability.Default.
	Metrics *observability.Metrics
}

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	tracker *app.Tracker
	auth    *app.AuthService
	sso     *SSO
	metrics *observability.Metrics

	corsOrigins []string
	sessionTTL  time.Duration
}

// New creates a Server wired to the given application services.
func New(tracker *app.Tracker, auth *app.AuthService, opts Options) *Server {
	s := &Server{
		tracker:     tracker,
		auth:        auth,
		sso:         opts.SSO,
		metrics:     opts.Metrics,
		corsOrigins: opts.CORSOrigins,
		sessionTTL:  opts.SessionTTL,
	}
	if s.metrics == nil {
		s.metrics = observability.Default
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = app.DefaultSessionTTL
	}
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(withNoCache)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Post("/password-check", s.handlePasswordCheck)
			r.Get("/config", s.handleConfig)
			r.Get("/sso/login", s.handleSSOLogin)
			r.Get("/sso/callback", s.handleSSOCallback)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/weights", func(r chi.Router) {
				r.Get("/", s.handleWeightsList)
				r.Post("/", s.handleWeightAdd)
				r.Post("/batch", s.handleWeightBatch)
				r.Get("/stream", s.handleStream)
				r.Get("/by-date/{date}", s.handleWeightByDate)
				r.Delete("/{id}", s.handleWeightDelete)
			})
			r.Delete("/account", s.handleAccountDelete)
		})
	})

	return r
}
