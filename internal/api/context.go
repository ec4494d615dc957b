package api

import (
	"context"

	"marketplace/internal/models"

	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext returns nil when the request is anonymous.
func SessionFromContext(ctx context.Context) *models.Session {
	v := ctx.Value(ctxKeySession)
	if v == nil {
		return nil
	}
	s, _ := v.(*models.Session)
	return s
}

func requestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
