package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/dmitrijs2005/vlesskeeper/internal/server/auth"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const callerIDKey ctxKey = "callerID"

func withCallerID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, callerIDKey, id)
}

func callerID(ctx context.Context) int64 {
	id, _ := ctx.Value(callerIDKey).(int64)
	return id
}

// authenticate resolves the bearer token into the caller's external id.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		id, err := auth.ExternalIDFromToken(token, h.jwtSecret)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withCallerID(r.Context(), id)))
	})
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.isAdmin == nil || !h.isAdmin(callerID(r.Context())) {
			h.writeError(w, r, common.ErrorForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
