package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/wb-go/wbf/zlog"
)

func SetupRouter(h *Handler, ws http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.Health)
	r.Get("/ws", ws)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications", h.SendNotification)
		r.Get("/notifications/{recipientID}", h.ListNotifications)
		r.Get("/notifications/{recipientID}/unread", h.UnreadCount)
		r.Get("/preferences/{recipientID}", h.GetPreferences)
		r.Put("/preferences/{recipientID}", h.SetPreferences)
		r.Get("/deadletters", h.ListDeadLetters)
		r.Post("/deadletters/{notificationID}/requeue", h.RequeueDeadLetter)
	})
	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zlog.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
