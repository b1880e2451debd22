// src/handlers/middleware.go
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/username/custoimport/src/logger"
)

type contextKey string

// A chave requestIDContextKey é usada pelo middleware de logging.
const requestIDContextKey contextKey = "requestID"

// ContextualLoggerMiddleware cria um logger com um requestID para cada requisição.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Gerar Request ID
		requestID := uuid.New().String()

		// 2. Criar um logger enriquecido com o Request ID
		ctxLogger := logger.L.With(slog.String("requestID", requestID))

		// 3. Injetar o logger e o requestID no contexto
		ctx := logger.ToContext(r.Context(), ctxLogger)
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)

		// 4. Propagar para o próximo middleware
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request id minted by the middleware, or
// an empty string outside a request scope.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}
