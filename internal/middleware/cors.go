// Package middleware provides HTTP middleware for the jira-pulse API.
package middleware

import (
	"net/http"

	"github.com/ashureev/jira-pulse/internal/identity"
	"github.com/go-chi/cors"
)

// CORS returns middleware that handles CORS for the configured frontend origins.
// Credentials are only allowed for explicit origins, never for "*".
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowCredentials := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCredentials = false
			break
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", identity.SessionHeaderName},
		ExposedHeaders:   []string{identity.SessionHeaderName},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}
