/**
 * @description
 * This file sets up the HTTP router for the local device bridge. The bridge is
 * how the app shell drives the authentication core: PIN and biometric sign-in,
 * first-time PIN setup, biometric preferences and the OTCPIN permission.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS for the embedded web view.
 * - github.com/rs/zerolog: request logging.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// BridgeRoutes creates and returns the router for the device bridge.
func BridgeRoutes(h *Handlers, allowedOrigins []string, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/session", func(r chi.Router) {
		r.Post("/pin", h.SubmitPINHandler)
		r.Post("/biometric", h.BiometricLoginHandler)
		r.Post("/logout", h.LogoutHandler)
		r.Post("/profile/refresh", h.RefreshProfileHandler)
	})

	r.Route("/biometric", func(r chi.Router) {
		r.Get("/capability", h.BiometricCapabilityHandler)
		r.Get("/preference", h.GetBiometricPreferenceHandler)
		r.Put("/preference", h.SetBiometricPreferenceHandler)
	})

	r.Get("/first-time-pin/{phone}", h.FirstTimePinStatusHandler)
	r.Post("/first-time-pin", h.CompleteFirstTimePinHandler)

	r.Get("/otcpin", h.PermissionStatusHandler)
	r.Post("/otcpin/invalidate", h.InvalidatePermissionHandler)

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	l := logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			l.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
