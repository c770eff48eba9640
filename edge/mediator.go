// Package edge authenticates CloudFront viewer requests.
//
// A Mediator answers CORS pre-flight requests itself, rejects requests
// without a valid bearer token, and forwards the rest to the origin with the
// verified identity attached as x-user-uid and x-user-email headers.
package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/internal/logctx"
	"github.com/google/uuid"
)

const (
	// BearerPrefix must start the Authorization header value exactly.
	BearerPrefix = "Bearer "

	HeaderUserID    = "x-user-uid"
	HeaderUserEmail = "x-user-email"

	MsgMissingToken = "Missing bearer token"
	MsgInvalidToken = "Invalid or expired token"
)

// KindMissingToken is logged when a request carries no usable Authorization header.
const KindMissingToken auth.Kind = "missing_token"

// CORS holds the headers sent in answer to pre-flight requests.
type CORS struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
}

// DefaultCORS allows any origin and header.
func DefaultCORS() CORS {
	return CORS{
		AllowOrigin:  "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "*",
	}
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithLogger sets the logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mediator) {
		if l != nil {
			m.log = l
		}
	}
}

// WithCORS replaces the pre-flight response headers.
func WithCORS(c CORS) Option {
	return func(m *Mediator) { m.cors = c }
}

// Mediator decides, per request, whether to answer at the edge or forward.
// It keeps no per-request state and is safe for concurrent use.
type Mediator struct {
	authn auth.Authenticator
	log   *slog.Logger
	cors  CORS
}

// New returns a Mediator verifying tokens with authn.
func New(authn auth.Authenticator, opts ...Option) (*Mediator, error) {
	if authn == nil {
		return nil, errors.New("authenticator is required")
	}
	m := &Mediator{
		authn: authn,
		log:   slog.New(slog.DiscardHandler),
		cors:  DefaultCORS(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Handle mediates req. On success req itself is returned with identity
// headers set; it is not modified otherwise.
func (m *Mediator) Handle(ctx context.Context, req *Request) Result {
	if req.Method == http.MethodOptions {
		m.log.DebugContext(ctx, "edge.preflight")
		return Result{Response: m.preflight()}
	}

	authz, _ := req.Headers.Get("authorization")
	tok, ok := strings.CutPrefix(authz, BearerPrefix)
	if !ok {
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{Kind: string(KindMissingToken)})
		m.log.InfoContext(ctx, "auth.check.fail")
		return Result{Response: Deny(http.StatusUnauthorized, MsgMissingToken)}
	}

	ui, err := m.verify(ctx, tok)
	if err != nil {
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{
			Kind:  string(auth.KindOf(err)),
			KeyID: auth.KeyIDOf(err),
		})
		m.log.WarnContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
		return Result{Response: Deny(http.StatusUnauthorized, MsgInvalidToken)}
	}

	if req.Headers == nil {
		req.Headers = Headers{}
	}
	req.Headers.Set(HeaderUserID, ui.UserID())
	if email, ok := ui.Email(); ok {
		req.Headers.Set(HeaderUserEmail, email)
	} else {
		// Never let a client-supplied value through.
		req.Headers.Del(HeaderUserEmail)
	}

	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{UserID: ui.UserID()})
	m.log.DebugContext(ctx, "auth.check.ok")
	return Result{Request: req}
}

// verify fails closed: panics and empty results are rejections.
func (m *Mediator) verify(ctx context.Context, tok string) (ui auth.UserInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			ui = nil
			err = fmt.Errorf("%w: panic during verification: %v", auth.ErrUnauthorized, r)
		}
	}()
	ui, err = m.authn.CheckAuthentication(ctx, tok)
	if err == nil && ui == nil {
		err = fmt.Errorf("%w: authenticator returned no user", auth.ErrUnauthorized)
	}
	return ui, err
}

// HandleEvent mediates the request in a Lambda@Edge viewer-request event and
// returns either the request to forward or the response to send.
func (m *Mediator) HandleEvent(ctx context.Context, ev Event) (any, error) {
	if len(ev.Records) == 0 || ev.Records[0].CF.Request == nil {
		return nil, errors.New("event carries no cloudfront request")
	}
	req := ev.Records[0].CF.Request

	rid := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		rid = lc.AwsRequestID
	}
	if rid == "" {
		rid = uuid.NewString()
	}
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID: rid,
		Method:    req.Method,
		URI:       req.URI,
		ClientIP:  req.ClientIP,
	})

	res := m.Handle(ctx, req)
	if res.Forwarded() {
		return res.Request, nil
	}
	return res.Response, nil
}

func (m *Mediator) preflight() *Response {
	return &Response{
		Status:            "200",
		StatusDescription: "OK",
		Headers: Headers{
			"access-control-allow-origin":  {{Key: "Access-Control-Allow-Origin", Value: m.cors.AllowOrigin}},
			"access-control-allow-methods": {{Key: "Access-Control-Allow-Methods", Value: m.cors.AllowMethods}},
			"access-control-allow-headers": {{Key: "Access-Control-Allow-Headers", Value: m.cors.AllowHeaders}},
			"cache-control":                {{Key: "Cache-Control", Value: "no-store"}},
			"content-type":                 {{Key: "Content-Type", Value: "application/json"}},
		},
		Body: "{}",
	}
}

// Deny builds a JSON error response carrying msg.
func Deny(status int, msg string) *Response {
	body, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{msg})
	return &Response{
		Status:            strconv.Itoa(status),
		StatusDescription: msg,
		Headers: Headers{
			"content-type": {{Key: "Content-Type", Value: "application/json"}},
		},
		Body: string(body),
	}
}
