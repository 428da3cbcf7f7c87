package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vedran77/duet/internal/service"
	"github.com/vedran77/duet/internal/transport/http/middleware"
	"github.com/vedran77/duet/internal/transport/ws"
)

type RouterDeps struct {
	Log            zerolog.Logger
	Auth           *service.AuthService
	Messages       *service.MessageService
	Hub            *ws.Hub
	Files          http.Handler
	FilesPrefix    string
	Ping           func(ctx context.Context) error
	MaxUploadBytes int64
	CORSOrigins    []string
}

func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	authHandler := NewAuthHandler(d.Auth, d.Log)
	conversationHandler := NewConversationHandler(d.Messages, d.MaxUploadBytes, d.Log)
	adminHandler := NewAdminHandler(d.Auth, d.Log)
	auth := middleware.Auth(d.Auth)

	// Public
	r.Get("/health", health(d.Ping))
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.Get("/ws", ws.ServeWS(d.Hub, d.Auth, lo.Contains(d.CORSOrigins, "*")))
	if d.Files != nil {
		if isRoutePath(d.FilesPrefix) {
			r.Handle(strings.TrimRight(d.FilesPrefix, "/")+"/*", d.Files)
		} else {
			d.Log.Error().Str("prefix", d.FilesPrefix).Msg("files prefix is not a route path, not serving blobs")
		}
	}

	// Protected
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/conversations/{otherUserId}", conversationHandler.History)
		r.Post("/conversations/send", conversationHandler.Send)
		r.Patch("/admin/users/{id}/restrict", adminHandler.Restrict)
	})

	return r
}

func isRoutePath(p string) bool {
	return strings.HasPrefix(p, "/") && strings.TrimRight(p, "/") != "" && !strings.ContainsAny(p, "*{}?#: ")
}

func health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
