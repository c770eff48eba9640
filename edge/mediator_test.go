package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/auth/authtest"
	"github.com/ggoodman/edgeauth/internal/logctx"
)

func newMediator(t *testing.T, authn auth.Authenticator, opts ...Option) *Mediator {
	t.Helper()
	m, err := New(authn, opts...)
	if err != nil {
		t.Fatalf("new mediator: %v", err)
	}
	return m
}

func firebaseMediator(t *testing.T) (*Mediator, *authtest.Provider) {
	t.Helper()
	idp := authtest.NewProvider(t, "semaia")
	p, err := idp.SecurityConfig().NewAuthenticator(context.Background())
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	return newMediator(t, p), idp
}

func bearerRequest(method, authz string) *Request {
	h := Headers{"host": {{Key: "Host", Value: "api.example.com"}}}
	if authz != "" {
		h["authorization"] = []Header{{Key: "Authorization", Value: authz}}
	}
	return &Request{Method: method, URI: "/v1/things", ClientIP: "203.0.113.9", Headers: h}
}

func assertDenied(t *testing.T, res Result, msg string) {
	t.Helper()
	if res.Forwarded() {
		t.Fatalf("request was forwarded, want denial %q", msg)
	}
	r := res.Response
	if r.Status != "401" {
		t.Fatalf("status %q", r.Status)
	}
	if r.StatusDescription != msg {
		t.Fatalf("status description %q, want %q", r.StatusDescription, msg)
	}
	if want := `{"error":"` + msg + `"}`; r.Body != want {
		t.Fatalf("body %s, want %s", r.Body, want)
	}
	if ct, _ := r.Headers.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
}

func TestScenarioA_ValidTokenForwards(t *testing.T) {
	m, idp := firebaseMediator(t)
	req := bearerRequest("GET", "Bearer "+idp.Mint(t, idp.Claims("uid-42")))

	res := m.Handle(context.Background(), req)
	if !res.Forwarded() {
		t.Fatalf("want forward, got %+v", res.Response)
	}
	if res.Request != req {
		t.Fatal("forwarded request must be the original")
	}
	if uid, _ := req.Headers.Get(HeaderUserID); uid != "uid-42" {
		t.Fatalf("x-user-uid %q", uid)
	}
	if _, ok := req.Headers.Get(HeaderUserEmail); ok {
		t.Fatal("x-user-email set without an email claim")
	}
	if host, _ := req.Headers.Get("host"); host != "api.example.com" {
		t.Fatal("unrelated headers must be preserved")
	}
}

func TestScenarioB_ExpiredTokenDenied(t *testing.T) {
	m, idp := firebaseMediator(t)
	claims := idp.Claims("uid-42")
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()

	res := m.Handle(context.Background(), bearerRequest("GET", "Bearer "+idp.Mint(t, claims)))
	assertDenied(t, res, MsgInvalidToken)
}

func TestScenarioC_NonBearerDenied(t *testing.T) {
	m, idp := firebaseMediator(t)
	res := m.Handle(context.Background(), bearerRequest("GET", "Token abc123"))
	assertDenied(t, res, MsgMissingToken)
	if idp.Fetches() != 0 {
		t.Fatal("key set fetched for a request without a bearer token")
	}
}

func TestScenarioD_PreflightAnswered(t *testing.T) {
	m, _ := firebaseMediator(t)
	res := m.Handle(context.Background(), bearerRequest("OPTIONS", ""))
	if res.Forwarded() {
		t.Fatal("pre-flight must not be forwarded")
	}
	r := res.Response
	if r.Status != "200" || r.Body != "{}" {
		t.Fatalf("status %q body %q", r.Status, r.Body)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "GET,POST,PUT,DELETE,OPTIONS",
		"Access-Control-Allow-Headers": "*",
		"Cache-Control":                "no-store",
		"Content-Type":                 "application/json",
	}
	for k, v := range want {
		got, ok := r.Headers.Get(k)
		if !ok || got != v {
			t.Fatalf("header %s = %q, want %q", k, got, v)
		}
		if r.Headers[strings.ToLower(k)][0].Key != k {
			t.Fatalf("header key casing for %s lost", k)
		}
	}
}

func TestPreflightIgnoresAuthorization(t *testing.T) {
	m := newMediator(t, authtest.Panic("must not verify"))
	for _, authz := range []string{"", "Bearer garbage", "Basic Zm9vOmJhcg=="} {
		res := m.Handle(context.Background(), bearerRequest("OPTIONS", authz))
		if res.Forwarded() || res.Response.Status != "200" {
			t.Fatalf("authz %q: want CORS response", authz)
		}
	}
}

func TestPreflightCustomCORS(t *testing.T) {
	m := newMediator(t, authtest.Deny(auth.KindExpired), WithCORS(CORS{AllowOrigin: "https://app.example.com", AllowMethods: "GET", AllowHeaders: "authorization"}))
	r := m.Handle(context.Background(), bearerRequest("OPTIONS", "")).Response
	if got, _ := r.Headers.Get("access-control-allow-origin"); got != "https://app.example.com" {
		t.Fatalf("allow origin %q", got)
	}
}

func TestBearerPrefixIsExact(t *testing.T) {
	m := newMediator(t, authtest.Allow(&authtest.User{ID: "u"}))
	for _, authz := range []string{"", "bearer abc", "BEARER abc", "Bearer", "Bearerabc", " Bearer abc"} {
		res := m.Handle(context.Background(), bearerRequest("GET", authz))
		assertDenied(t, res, MsgMissingToken)
	}
}

func TestEmptyBearerTokenIsInvalid(t *testing.T) {
	m, _ := firebaseMediator(t)
	assertDenied(t, m.Handle(context.Background(), bearerRequest("GET", "Bearer ")), MsgInvalidToken)
}

func TestEveryFailureKindLooksTheSame(t *testing.T) {
	kinds := []auth.Kind{
		auth.KindMalformedToken,
		auth.KindSignatureInvalid,
		auth.KindExpired,
		auth.KindIssuerMismatch,
		auth.KindAudienceMismatch,
		auth.KindKeySetUnavailable,
		auth.KindKeyNotFound,
		auth.KindInternal,
	}
	var first *Response
	for _, k := range kinds {
		res := newMediator(t, authtest.Deny(k)).Handle(context.Background(), bearerRequest("GET", "Bearer x"))
		assertDenied(t, res, MsgInvalidToken)
		if first == nil {
			first = res.Response
			continue
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(res.Response)
		if !bytes.Equal(a, b) {
			t.Fatalf("kind %s produced a distinguishable response:\n%s\n%s", k, a, b)
		}
	}
}

func TestPanicFailsClosed(t *testing.T) {
	m := newMediator(t, authtest.Panic("boom"))
	res := m.Handle(context.Background(), bearerRequest("GET", "Bearer x"))
	assertDenied(t, res, MsgInvalidToken)
}

func TestNilUserFailsClosed(t *testing.T) {
	m := newMediator(t, auth.AuthenticatorFunc(func(context.Context, string) (auth.UserInfo, error) {
		return nil, nil
	}))
	assertDenied(t, m.Handle(context.Background(), bearerRequest("GET", "Bearer x")), MsgInvalidToken)
}

func TestIdentityHeaders(t *testing.T) {
	tests := []struct {
		name      string
		user      *authtest.User
		spoof     bool
		wantEmail string
		wantSet   bool
	}{
		{"email claim", &authtest.User{ID: "u1", EmailVal: "u1@example.com", HasEmail: true}, false, "u1@example.com", true},
		{"email replaces spoofed", &authtest.User{ID: "u1", EmailVal: "u1@example.com", HasEmail: true}, true, "u1@example.com", true},
		{"no email strips spoofed", &authtest.User{ID: "u1"}, true, "", false},
		{"empty subject", &authtest.User{}, false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bearerRequest("POST", "Bearer x")
			req.Headers["x-user-uid"] = []Header{{Key: "X-User-Uid", Value: "admin"}}
			if tt.spoof {
				req.Headers["x-user-email"] = []Header{{Key: "X-User-Email", Value: "admin@example.com"}}
			}

			res := newMediator(t, authtest.Allow(tt.user)).Handle(context.Background(), req)
			if !res.Forwarded() {
				t.Fatalf("want forward, got %+v", res.Response)
			}
			uid, ok := req.Headers.Get(HeaderUserID)
			if !ok || uid != tt.user.ID {
				t.Fatalf("x-user-uid (%q,%v), want %q", uid, ok, tt.user.ID)
			}
			if n := len(req.Headers[HeaderUserID]); n != 1 {
				t.Fatalf("want a single x-user-uid value, got %d", n)
			}
			email, ok := req.Headers.Get(HeaderUserEmail)
			if ok != tt.wantSet || email != tt.wantEmail {
				t.Fatalf("x-user-email (%q,%v), want (%q,%v)", email, ok, tt.wantEmail, tt.wantSet)
			}
		})
	}
}

func TestNilHeadersDenied(t *testing.T) {
	m := newMediator(t, authtest.Allow(&authtest.User{ID: "u"}))
	res := m.Handle(context.Background(), &Request{Method: "GET", URI: "/"})
	assertDenied(t, res, MsgMissingToken)
}

func TestVerifyingTwiceFetchesOnce(t *testing.T) {
	m, idp := firebaseMediator(t)
	tok := idp.Mint(t, idp.Claims("uid-1"))
	for i := 0; i < 2; i++ {
		if res := m.Handle(context.Background(), bearerRequest("GET", "Bearer "+tok)); !res.Forwarded() {
			t.Fatalf("attempt %d denied: %+v", i, res.Response)
		}
	}
	if idp.Fetches() != 1 {
		t.Fatalf("want 1 key set fetch, got %d", idp.Fetches())
	}
}

const viewerRequestEvent = `{
  "Records": [{
    "cf": {
      "config": {"distributionId": "EDFDVBD6EXAMPLE", "eventType": "viewer-request"},
      "request": {
        "clientIp": "203.0.113.178",
        "method": "GET",
        "uri": "/picture.jpg",
        "querystring": "size=large",
        "headers": {
          "host": [{"key": "Host", "value": "d111111abcdef8.cloudfront.net"}],
          "authorization": [{"key": "Authorization", "value": "%s"}]
        }
      }
    }
  }]
}`

func TestHandleEvent_Forward(t *testing.T) {
	m, idp := firebaseMediator(t)
	raw := strings.Replace(viewerRequestEvent, "%s", "Bearer "+idp.Mint(t, idp.Claims("uid-7")), 1)

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := m.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	req, ok := out.(*Request)
	if !ok {
		t.Fatalf("want *Request, got %T", out)
	}
	if req.Querystring != "size=large" || req.ClientIP != "203.0.113.178" {
		t.Fatalf("request fields lost: %+v", req)
	}

	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	hdrs := back["headers"].(map[string]any)
	uid := hdrs["x-user-uid"].([]any)[0].(map[string]any)
	if uid["key"] != "x-user-uid" || uid["value"] != "uid-7" {
		t.Fatalf("x-user-uid wire form %v", uid)
	}
}

func TestHandleEvent_Deny(t *testing.T) {
	m, _ := firebaseMediator(t)
	raw := strings.Replace(viewerRequestEvent, "%s", "Token abc123", 1)

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := m.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	resp, ok := out.(*Response)
	if !ok {
		t.Fatalf("want *Response, got %T", out)
	}
	if resp.Status != "401" || resp.Body != `{"error":"Missing bearer token"}` {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandleEvent_Empty(t *testing.T) {
	m := newMediator(t, authtest.Deny(auth.KindInternal))
	if _, err := m.HandleEvent(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for empty event")
	}
}

func TestFailureKindIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	m := newMediator(t, authtest.Deny(auth.KindAudienceMismatch), WithLogger(log))

	ev := Event{Records: []Record{{CF: CloudFront{Request: bearerRequest("GET", "Bearer x")}}}}
	if _, err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	var rec struct {
		Msg  string `json:"msg"`
		Auth struct {
			Kind string `json:"kind"`
		} `json:"auth"`
		Req struct {
			ID       string `json:"id"`
			URI      string `json:"uri"`
			ClientIP string `json:"client_ip"`
		} `json:"req"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log %q: %v", buf.String(), err)
	}
	if rec.Msg != "auth.check.fail" || rec.Auth.Kind != string(auth.KindAudienceMismatch) {
		t.Fatalf("unexpected log record %+v", rec)
	}
	if rec.Req.ID == "" || rec.Req.URI != "/v1/things" || rec.Req.ClientIP != "203.0.113.9" {
		t.Fatalf("request group missing from log: %+v", rec)
	}
}

func TestFailureKeyIDIsLogged(t *testing.T) {
	idp := authtest.NewProvider(t, "semaia")
	p, err := idp.SecurityConfig().NewAuthenticator(context.Background())
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	var buf bytes.Buffer
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	m := newMediator(t, p, WithLogger(log))

	claims := idp.Claims("uid-1")
	claims["aud"] = "someone-else"
	res := m.Handle(context.Background(), bearerRequest("GET", "Bearer "+idp.Mint(t, claims)))
	assertDenied(t, res, MsgInvalidToken)

	var rec struct {
		Auth struct {
			Kind string `json:"kind"`
			Kid  string `json:"kid"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log %q: %v", buf.String(), err)
	}
	if rec.Auth.Kind != string(auth.KindAudienceMismatch) || rec.Auth.Kid != idp.KeyID {
		t.Fatalf("auth group %+v", rec.Auth)
	}
	if strings.Contains(string(res.Response.Body), "audience") {
		t.Fatal("failure kind leaked to the client")
	}
}

func TestMissingTokenKindIsLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(logctx.Handler{Handler: slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})})
	m := newMediator(t, authtest.Deny(auth.KindInternal), WithLogger(log))

	assertDenied(t, m.Handle(context.Background(), bearerRequest("GET", "")), MsgMissingToken)
	if !strings.Contains(buf.String(), `"auth":{"kind":"missing_token"}`) {
		t.Fatalf("log %q", buf.String())
	}
}

func TestNewRequiresAuthenticator(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error")
	}
}
