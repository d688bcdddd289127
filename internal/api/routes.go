package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach/internal/pkg/httputil"
)

type contextKey string

const userIDKey contextKey = "userID"

// userID returns the authenticated user for a request. Empty only if the
// identity middleware did not run.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// requireUser reads the user identity set by the upstream gateway.
// Authentication itself happens at the edge; an absent header here means
// the request bypassed the gateway and is rejected.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-ID")
		if id == "" {
			httputil.Error(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

// SetupRoutes configures all API routes.
func SetupRoutes(campaigns *CampaignAPI, followups *FollowupAPI, leads *LeadAPI, accounts *AccountAPI) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)
		campaigns.RegisterRoutes(r)
		followups.RegisterRoutes(r)
		leads.RegisterRoutes(r)
		accounts.RegisterRoutes(r)
	})

	return r
}
