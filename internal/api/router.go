package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vidtube/internal/account"
	"vidtube/internal/blob"
	"vidtube/internal/config"
	"vidtube/internal/constants"
	"vidtube/internal/session"
	"vidtube/internal/ws"
)

// Dependencies are the services the HTTP layer routes to. Blobs is nil when
// media live on an external host; Health may be empty.
type Dependencies struct {
	Config   *config.Config
	Sessions *session.Manager
	Guard    *session.Guard
	Accounts *account.Service
	Hub      *ws.Hub
	Blobs    *blob.Service
	Health   map[string]Pinger
}

type Server struct {
	router *chi.Mux
	config *config.Config
	hub    *ws.Hub
}

func NewServer(deps Dependencies) (*Server, error) {
	cfg := deps.Config

	ips, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("configuring client IP resolver: %w", err)
	}

	cookies := cookieWriter{secure: *cfg.Auth.CookieSecure, domain: cfg.Auth.CookieDomain}
	authHandler := NewAuthHandler(deps.Sessions, deps.Guard, cookies, ips)
	userHandler := NewUserHandler(deps.Accounts, cfg.Storage.UploadMaxBytes, cfg.Storage.TempDir)
	healthHandler := NewHealthHandler(deps.Health)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Guard, deps.Sessions)

	authMiddleware := NewAuthMiddleware(deps.Guard)
	jsonBody := maxBodySizeMiddleware(constants.RequestBodyMaxBytes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)

	if deps.Blobs != nil {
		r.Get("/media/{name}", NewMediaHandler(deps.Blobs).GetBlob)
	}

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.With(jsonBody, rateLimit(cfg.RateLimit.LoginPerMinute, time.Minute, ips)).Post("/login", authHandler.Login)
		r.With(jsonBody, rateLimit(cfg.RateLimit.RefreshPerMinute, time.Minute, ips)).Post("/refresh-token", authHandler.Refresh)
		r.With(jsonBody).Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)

			r.Get("/current-user", userHandler.Current)
			r.Get("/sessions", authHandler.ListSessions)
			r.Patch("/avatar", userHandler.UpdateAvatar)
			r.Patch("/cover-image", userHandler.UpdateCoverImage)

			r.Group(func(r chi.Router) {
				r.Use(jsonBody)
				r.Post("/logout-all", authHandler.LogoutAll)
				r.Post("/change-password", authHandler.ChangePassword)
				r.Patch("/update-account", userHandler.UpdateAccount)
			})
		})
	})

	r.With(rateLimit(cfg.RateLimit.RefreshPerMinute, time.Minute, ips)).Get("/ws", wsHandler.ServeWS)

	return &Server{
		router: r,
		config: cfg,
		hub:    deps.Hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	s.hub.Shutdown()
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}
