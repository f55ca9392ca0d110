/**
 * @description
 * This file sets up the HTTP router for the camp-portal. It defines the API endpoints,
 * associates them with their handlers, and applies middleware for logging, recovery,
 * CORS and authentication.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the portal router. metricsHandler may be nil.
func NewRouter(h *Handlers, verifier *TokenVerifier, allowedOrigins []string, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	// Checkout returns may arrive without a token; the service reports them as failed
	// without calling the backend.
	r.Group(func(r chi.Router) {
		r.Use(OptionalAuthMiddleware(verifier))
		r.Get("/camps/{id}", h.handleGetCamp)
		r.Get("/payments/success", h.handlePaymentSuccess)
		r.Get("/payments/cancel", h.handlePaymentCancel)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(verifier))
		r.Post("/camps/{id}/registrations", h.handleSubmitRegistration)
		r.Get("/dashboard", h.handleDashboard)
		r.Delete("/registrations/{id}", h.handleCancelRegistration)
		r.Patch("/registrations/{id}/confirm", h.handleConfirmRegistration)
		r.Post("/payments/checkout", h.handleCheckout)
	})

	return r
}
