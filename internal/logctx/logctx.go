package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with request and authentication details carried
// on the context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("uri", rd.URI),
			slog.String("client_ip", rd.ClientIP),
		))
	}

	if ad, ok := ctx.Value(authDataKey{}).(*AuthData); ok {
		var attrs []any
		if ad.UserID != "" {
			attrs = append(attrs, slog.String("user_id", ad.UserID))
		}
		if ad.Kind != "" {
			attrs = append(attrs, slog.String("kind", ad.Kind))
		}
		if ad.KeyID != "" {
			attrs = append(attrs, slog.String("kid", ad.KeyID))
		}
		if len(attrs) > 0 {
			r.AddAttrs(slog.Group("auth", attrs...))
		}
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type RequestData struct {
	RequestID string
	Method    string
	URI       string
	ClientIP  string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type authDataKey struct{}

// AuthData describes the outcome of a token check. Kind and KeyID are set
// on rejection.
type AuthData struct {
	UserID string
	Kind   string
	KeyID  string
}

func WithAuthData(ctx context.Context, data *AuthData) context.Context {
	return context.WithValue(ctx, authDataKey{}, data)
}
