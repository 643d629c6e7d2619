package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"escrow-ledger-go/internal/policy"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type actorKey struct{}

// actorMiddleware reads the calling actor from X-Actor-Id / X-Actor-Role.
// Requests without the headers carry the zero Actor, which no capability grants.
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
		rawRole := r.Header.Get("X-Actor-Role")
		if id == "" && rawRole == "" {
			next.ServeHTTP(w, r)
			return
		}

		role, err := policy.ParseRole(rawRole)
		if err != nil || id == "" {
			writeError(w, http.StatusUnauthorized, "invalid_actor", "X-Actor-Id and a known X-Actor-Role are required", middleware.GetReqID(r.Context()))
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, policy.Actor{Id: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) policy.Actor {
	actor, _ := ctx.Value(actorKey{}).(policy.Actor)
	return actor
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
