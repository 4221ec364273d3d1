package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORSMiddleware lets the configured frontend origins call the API from the
// browser. An empty list allows any origin.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Token"},
		ExposedHeaders: []string{"Authorization"},
		MaxAge:         300,
	})
}
