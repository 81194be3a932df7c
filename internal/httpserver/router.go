package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "medius/docs"
	"medius/internal/auth"
	"medius/internal/chat"
	"medius/internal/config"
	"medius/internal/security"
	"medius/internal/ws"
)

// Deps are the components the bridge routes are served from.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Sessions  *chat.Registry
	Dashboard Dashboard
	Identity  auth.Session
	Tokens    *security.TokenService
	Passwords *security.PasscodeHasher
	Hub       *ws.Hub
}

// NewRouter constructs the bridge router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"app":      d.Config.AppName,
			"sessions": len(d.Sessions.DealIDs()),
		})
	})

	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/auth/login", handleLogin(d.Config, d.Identity, d.Tokens, d.Passwords, logger))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens))

			r.Get("/auth/me", handleMe())

			// Dashboard
			r.Get("/dashboard", handleDashboard(d.Dashboard))
			r.Get("/deals", handleListDeals(d.Dashboard))
			r.Get("/notifications", handleListNotifications(d.Dashboard))
			r.Post("/notifications/{notificationID}/read", handleMarkNotificationRead(d.Dashboard))
			r.Get("/contacts", handleListContacts(d.Dashboard))
			r.Get("/stats", handleStats(d.Dashboard))

			// Deal chat sessions
			r.Route("/deals/{dealID}", func(r chi.Router) {
				r.Post("/session", handleMountSession(d.Sessions))
				r.Delete("/session", handleUnmountSession(d.Sessions))
				r.Post("/session/reconnect", handleReconnect(d.Sessions))

				r.Group(func(r chi.Router) {
					r.Use(SessionCtx(d.Sessions))
					r.Get("/session", handleSnapshot())
					r.Post("/messages", handleSendMessage())
					r.Put("/draft", handleSetDraft())
					r.Post("/attachments", handleUpload(d.Config.MaxUploadBytes))
					r.Get("/files/link", handleFileLink())
					r.Post("/release", handleRelease())
					r.Post("/cancel", handleCancel())
					r.Post("/banner/dismiss", handleDismissBanner())
				})
			})
		})
	})

	// Local UI socket; long lived, so it stays outside the API timeout.
	r.Get("/ws", ws.MakeHandler(d.Hub, d.Tokens, d.Sessions, d.Config.CORSOrigins, logger))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
