package http

import (
	"net/http"
	"time"

	"duahabit/internal/auth"
	"duahabit/internal/practice"
	"duahabit/internal/service"
	"duahabit/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type API struct {
	Store   storage.Store
	Service *service.Service
	Engine  *practice.Engine
	Auth    *auth.Manager
	Origins []string
	Log     zerolog.Logger

	// Per-caller request budget. Zero values fall back to 5 rps, burst 10.
	RateRPS   float64
	RateBurst int

	limiter *rateLimiter
}

func (a *API) Router() http.Handler {
	rps := a.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := a.RateBurst
	if burst <= 0 {
		burst = 10
	}
	a.limiter = newRateLimiter(rps, burst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(a.loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(a.corsMiddleware)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", metricsHandler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(a.rateLimitMiddleware)
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/refresh", a.handleRefresh)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)
		r.Use(a.rateLimitMiddleware)

		r.Get("/me", a.handleMe)
		r.Put("/me", a.handleUpdateMe)

		r.Get("/categories", a.handleListCategories)
		r.Route("/duas", func(r chi.Router) {
			r.Get("/", a.handleListDuas)
			r.Get("/{id}", a.handleGetDua)
		})
		r.Route("/journeys", func(r chi.Router) {
			r.Get("/", a.handleListJourneys)
			r.Get("/{id}", a.handleGetJourney)
			r.Post("/{id}/subscribe", a.handleSubscribe)
			r.Delete("/{id}/subscribe", a.handleUnsubscribe)
		})
		r.Route("/habits", func(r chi.Router) {
			r.Get("/", a.handleListHabits)
			r.Post("/custom", a.handleAddCustomHabit)
			r.Delete("/custom/{id}", a.handleRemoveCustomHabit)
			r.Post("/{id}/complete", a.handleCompleteHabit)
		})
		r.Get("/progress", a.handleProgress)
		r.Get("/stats", a.handleStats)
	})

	return r
}
