package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"vehicle-rental-backend/internal/config"
	"vehicle-rental-backend/internal/domain"
	"vehicle-rental-backend/internal/logger"
	"vehicle-rental-backend/internal/security"
)

// WebhookSecretHeader carries the shared secret of the payment collaborator.
const WebhookSecretHeader = "X-Webhook-Secret"

type actorKey struct{}

func withActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// actorFrom returns the authenticated actor. Handlers behind authMiddleware always have one.
func actorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}

type authMiddleware struct {
	tokens        security.TokenManager
	webhookSecret string
}

func (m *authMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if cur := mux.CurrentRoute(r); cur != nil {
			route = cur.GetName()
		}

		switch config.RequiredSecurityLevel(route) {
		case config.SecurityPublic:
			next.ServeHTTP(w, r)
			return

		case config.SecurityWebhook:
			got := r.Header.Get(WebhookSecretHeader)
			if m.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(m.webhookSecret)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: "invalid webhook secret"})
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r.Context(), domain.SystemActor)))
			return
		}

		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: "authorization token is not provided"})
			return
		}
		claims, err := m.tokens.ValidateToken(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), claims.Actor())))
	})
}

func extractBearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		args := []any{"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration_ms", time.Since(start).Milliseconds()}
		if cur := mux.CurrentRoute(r); cur != nil {
			args = append(args, "route", cur.GetName())
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Error("http request", args...)
		} else {
			logger.Info("http request", args...)
		}
	})
}
