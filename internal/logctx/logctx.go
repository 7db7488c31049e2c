// Package logctx enriches slog records with request and session attributes
// carried in the context, so transport and session code can log without
// threading correlation fields through every call.
package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("path", rd.Path),
		))
	}

	if status, ok := ctx.Value(sessionStatusKey{}).(string); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("status", status),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

type RequestData struct {
	RequestID string
	Method    string
	Path      string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionStatusKey struct{}

func WithSessionStatus(ctx context.Context, status string) context.Context {
	return context.WithValue(ctx, sessionStatusKey{}, status)
}
