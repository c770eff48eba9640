// Package httpedge runs the edge mediator in front of an ordinary HTTP
// upstream, for self-hosted deployments and local development.
package httpedge

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/edgeauth/edge"
	"github.com/ggoodman/edgeauth/internal/logctx"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id to the upstream and back to the client.
const HeaderRequestID = "X-Request-Id"

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// Handler mediates every request and hands the forwarded ones to next.
type Handler struct {
	m    *edge.Mediator
	next http.Handler
	log  *slog.Logger
}

// New returns a Handler running m in front of next.
func New(m *edge.Mediator, next http.Handler, opts ...Option) (*Handler, error) {
	if m == nil {
		return nil, errors.New("mediator is required")
	}
	if next == nil {
		return nil, errors.New("next handler is required")
	}
	h := &Handler{m: m, next: next, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rid := uuid.NewString()
	er := toEdgeRequest(r)
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID: rid,
		Method:    er.Method,
		URI:       er.URI,
		ClientIP:  er.ClientIP,
	})
	w.Header().Set(HeaderRequestID, rid)

	res := h.m.Handle(ctx, er)
	if !res.Forwarded() {
		writeResponse(w, res.Response)
		h.log.InfoContext(ctx, "http.edge.answered",
			slog.String("status", res.Response.Status),
			slog.Duration("duration", time.Since(start)),
		)
		return
	}

	out := r.Clone(ctx)
	out.Header = fromEdgeHeaders(res.Request.Headers)
	out.Header.Set(HeaderRequestID, rid)
	h.next.ServeHTTP(w, out)
	h.log.DebugContext(ctx, "http.edge.forwarded", slog.Duration("duration", time.Since(start)))
}

func toEdgeRequest(r *http.Request) *edge.Request {
	hdrs := make(edge.Headers, len(r.Header)+1)
	for name, values := range r.Header {
		key := strings.ToLower(name)
		for _, v := range values {
			hdrs[key] = append(hdrs[key], edge.Header{Key: name, Value: v})
		}
	}
	if r.Host != "" {
		hdrs["host"] = []edge.Header{{Key: "Host", Value: r.Host}}
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return &edge.Request{
		ClientIP:    ip,
		Headers:     hdrs,
		Method:      r.Method,
		Querystring: r.URL.RawQuery,
		URI:         r.URL.Path,
	}
}

func fromEdgeHeaders(hdrs edge.Headers) http.Header {
	out := make(http.Header, len(hdrs))
	for name, values := range hdrs {
		if name == "host" {
			continue
		}
		for _, v := range values {
			out.Add(name, v.Value)
		}
	}
	return out
}

func writeResponse(w http.ResponseWriter, resp *edge.Response) {
	for _, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(v.Key, v.Value)
		}
	}
	status, err := strconv.Atoi(resp.Status)
	if err != nil {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(resp.Body))
}

// NewProxy returns a reverse proxy to upstream. The inbound Host header is
// preserved.
func NewProxy(upstream *url.URL, log *slog.Logger) *httputil.ReverseProxy {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.ErrorContext(r.Context(), "http.proxy.fail", slog.String("err", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}
