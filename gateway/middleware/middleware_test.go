package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

var testCaller = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestAuthenticatorAttachesIdentity(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "pairvault"}, nil)
	token, err := IssueToken(testSecret, "pairvault", testCaller, []string{ScopeAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var seen *Identity
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if seen == nil || seen.Address != testCaller {
		t.Fatalf("identity not attached: %+v", seen)
	}
	if !seen.HasScope(ScopeAdmin) {
		t.Fatalf("expected admin scope, got %v", seen.Scopes)
	}
}

func TestAuthenticatorAllowsAnonymousRequests(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	called := false
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("anonymous request must not carry an identity")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	if !called {
		t.Fatalf("handler not reached")
	}
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "pairvault"}, nil)

	wrongKey, err := IssueToken("other-secret", "pairvault", testCaller, nil, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	wrongIssuer, err := IssueToken(testSecret, "someone-else", testCaller, nil, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testCaller.Hex(),
		"iss": "pairvault",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	for name, token := range map[string]string{
		"wrong key":    wrongKey,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"garbage":      "not-a-jwt",
	} {
		if _, err := auth.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}

	handler := auth.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler reached with an invalid token")
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+wrongKey)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestRequireChecksScopes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if _, err := Require(req.Context()); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	ctx := WithIdentity(req.Context(), &Identity{Address: testCaller})
	if _, err := Require(ctx); err != nil {
		t.Fatalf("plain identity rejected: %v", err)
	}
	if _, err := Require(ctx, ScopeAdmin); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("expected ErrInsufficientScope, got %v", err)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	now = now.Add(time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", res.Code)
	}
}

func TestRateLimiterSeparatesCallers(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1})
	if !limiter.Allow("alice") || limiter.Allow("alice") {
		t.Fatalf("alice should get exactly one request")
	}
	if !limiter.Allow("bob") {
		t.Fatalf("bob shares no bucket with alice")
	}
	if !NewRateLimiter(RateLimit{}).Allow("anyone") {
		t.Fatalf("a zero rate disables limiting")
	}
}

func TestCallerKeyPrefersIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := CallerKey(req); got != "203.0.113.9" {
		t.Fatalf("unexpected anonymous key %q", got)
	}
	req = req.WithContext(WithIdentity(req.Context(), &Identity{Address: testCaller}))
	if got := CallerKey(req); got != testCaller.Hex() {
		t.Fatalf("unexpected caller key %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"https://app.example"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("unexpected allowed origin %q", got)
	}
}
