package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"pairvault/observability/logging"
)

// ScopeAdmin grants access to configurator methods and simulation helpers.
const ScopeAdmin = "vault:admin"

var (
	ErrMissingToken      = errors.New("auth: missing bearer token")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyIdentity contextKey = "pairvault.identity"

// Identity is the authenticated caller behind a request.
type Identity struct {
	Address common.Address
	Scopes  []string
}

// HasScope reports whether the identity carries scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IdentityFromContext returns the identity attached by Authenticator.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(*Identity)
	return id, ok && id != nil
}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

// Require returns the caller identity, failing when the request carried no
// token or lacks one of the scopes.
func Require(ctx context.Context, scopes ...string) (*Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrMissingToken
	}
	for _, scope := range scopes {
		if !id.HasScope(scope) {
			return nil, ErrInsufficientScope
		}
	}
	return id, nil
}

// Authenticator verifies HMAC signed bearer tokens. Requests without a token
// pass through anonymously so read-only methods stay open; a token that is
// present but invalid is rejected outright.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.TrimSpace(header) == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := a.Authenticate(extractBearer(header))
		if err != nil {
			a.logger.Warn("auth: rejected bearer token",
				logging.MaskField("authorization", header),
				slog.Any("error", err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Authenticate validates tokenString and returns the identity it names.
func (a *Authenticator) Authenticate(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if a.cfg.Issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != a.cfg.Issuer {
			return nil, errors.Join(ErrInvalidToken, errors.New("issuer mismatch"))
		}
	}
	sub, _ := claims["sub"].(string)
	if !common.IsHexAddress(sub) {
		return nil, errors.Join(ErrInvalidToken, errors.New("subject is not an address"))
	}
	return &Identity{Address: common.HexToAddress(sub), Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, nil
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	if len(a.secret) == 0 {
		return nil, errors.Join(ErrInvalidToken, errors.New("auth secret not configured"))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.cfg.ClockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret, issuer string, subject common.Address, scopes []string, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("auth: secret must not be empty")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject.Hex(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
