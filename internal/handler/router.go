package handler

import (
	"net/http"

	"payment-console/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires the control API.
type RouterConfig struct {
	Session       *SessionHandler
	Notifications *NotificationHandler
	Channel       *ChannelHandler
	Theme         *ThemeHandler
	State         *StateHandler

	ReadinessChecks []ReadinessCheck

	ControlToken      string
	AllowedOrigins    []string
	OpenAPIValidation bool
	// Limiter throttles /api/v1 when set.
	Limiter *middleware.RateLimiter
}

// NewRouter builds the control API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", Health)
	r.Get("/health/ready", Ready(cfg.ReadinessChecks...))
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ControlToken(cfg.ControlToken))
		if cfg.Limiter != nil {
			r.Use(cfg.Limiter.Middleware())
		}
		r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.OpenAPIValidation)))

		if s := cfg.Session; s != nil {
			r.Route("/session", func(r chi.Router) {
				r.Get("/", s.Get)
				r.Post("/login", s.Login)
				r.Post("/register", s.Register)
				r.Post("/logout", s.Logout)
				r.Post("/logout-all", s.LogoutAll)
				r.Post("/refresh", s.Refresh)
				r.Post("/foreground", s.Foreground)
				r.Patch("/user", s.UpdateUser)
				r.Delete("/error", s.ClearError)
				r.Get("/profile", s.Profile)
				r.Put("/profile", s.UpdateProfile)
				r.Post("/password/forgot", s.ForgotPassword)
				r.Post("/password/reset", s.ResetPassword)
				r.Post("/password/change", s.ChangePassword)
				r.Post("/email/verify", s.VerifyEmail)
			})
		}

		r.Route("/notifications", func(r chi.Router) {
			if n := cfg.Notifications; n != nil {
				r.Get("/", n.List)
				r.Post("/", n.Add)
				r.Delete("/", n.ClearAll)
				r.Post("/read-all", n.MarkAllAsRead)
				r.Post("/{id}/read", n.MarkAsRead)
				r.Delete("/{id}", n.Remove)
			}
			if c := cfg.Channel; c != nil {
				r.Get("/channel", c.Status)
				r.Post("/channel/connect", c.Connect)
				r.Post("/channel/disconnect", c.Disconnect)
			}
		})

		if t := cfg.Theme; t != nil {
			r.Get("/theme", t.Get)
			r.Put("/theme", t.Save)
			r.Delete("/theme", t.Reset)
		}
	})

	if cfg.State != nil {
		// Browsers cannot set headers on upgrades; ControlToken also reads ?control_token=.
		r.With(middleware.ControlToken(cfg.ControlToken)).Get("/ws/state", cfg.State.HandleConnection)
	}

	return r
}
