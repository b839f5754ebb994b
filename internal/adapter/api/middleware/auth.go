package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/tripflow/internal/adapter/api/handler"
	"github.com/V4T54L/tripflow/internal/domain"
)

const (
	APIKeyHeader = "X-API-Key"
	APIKeyParam  = "api_key"
)

// Auth is a middleware factory that returns a new authentication middleware.
// The key is read from the api_key query parameter, falling back to the
// X-API-Key header.
func Auth(repo domain.APIKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.URL.Query().Get(APIKeyParam)
			if apiKey == "" {
				apiKey = r.Header.Get(APIKeyHeader)
			}
			if apiKey == "" {
				logger.Warn("API key missing from request", "remote_addr", r.RemoteAddr, "request_id", RequestIDFrom(r.Context()))
				handler.WriteError(w, http.StatusUnauthorized, handler.CodeUnauthorized, "API key required")
				return
			}

			isValid, err := repo.IsValid(r.Context(), apiKey)
			if err != nil {
				logger.Error("failed to validate API key", "error", err, "request_id", RequestIDFrom(r.Context()))
				handler.WriteError(w, http.StatusInternalServerError, handler.CodeInternal, "could not validate API key")
				return
			}

			if !isValid {
				logger.Warn("invalid API key provided", "remote_addr", r.RemoteAddr, "request_id", RequestIDFrom(r.Context()))
				handler.WriteError(w, http.StatusUnauthorized, handler.CodeUnauthorized, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
