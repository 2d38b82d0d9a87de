// Package auth verifies the bearer tokens the case management application
// hands out and decides which cases a request may open.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

const (
	// Issuer is the iss claim of tokens minted by IssueToken.
	Issuer = "sagsfiler"
	// AllCases in the cases claim grants access to every case.
	AllCases = "*"

	clockSkew = 30 * time.Second
)

var errNoSecret = errors.New("no signing secret configured")

type claimsKey struct{}

// Claims is the token payload: the registered claims plus the case IDs the
// bearer may open.
type Claims struct {
	Cases []string `json:"cases"`
	jwt.RegisteredClaims
}

// CanAccess reports whether the claims cover caseID.
func (c *Claims) CanAccess(caseID string) bool {
	return slices.Contains(c.Cases, AllCases) || slices.Contains(c.Cases, caseID)
}

// Auth checks HS256 tokens signed with a shared secret.
type Auth struct {
	secret []byte
	parser *jwt.Parser
}

// New returns an Auth for secret. An empty secret disables authentication.
func New(secret string) *Auth {
	return &Auth{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Enabled reports whether tokens are checked.
func (a *Auth) Enabled() bool { return len(a.secret) > 0 }

// ValidateToken verifies the signature and expiry of raw and returns its claims.
func (a *Auth) ValidateToken(raw string) (*Claims, error) {
	if !a.Enabled() {
		return nil, errNoSecret
	}
	var claims Claims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return nil, err
	}
	return &claims, nil
}

// IssueToken signs a token for subject that opens cases until ttl elapses.
// Operators and tests use it; users get their tokens from the case application.
func (a *Auth) IssueToken(subject string, cases []string, ttl time.Duration) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, errNoSecret
	}
	now := time.Now()
	exp := now.Add(ttl)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Cases: cases,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ─── HTTP ───────────────────────────────────────────────────────────────────

// Middleware rejects requests without a valid bearer token in the
// Authorization header and stores the claims in the request context. It is
// a pass-through when authentication is off.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return a.guard(next, false)
}

// LinkMiddleware is Middleware for download links opened outside the
// client, which carry the token in the token query parameter instead.
// Only the GET download routes use it.
func (a *Auth) LinkMiddleware(next http.Handler) http.Handler {
	return a.guard(next, true)
}

func (a *Auth) guard(next http.Handler, allowQuery bool) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" && allowQuery {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			metrics.RecordAuthAttempt(false)
			writeUnauthorized(w, "missing authentication token")
			return
		}
		claims, err := a.ValidateToken(raw)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("token rejected", zap.Error(err))
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeUnauthorized(w, "token expired")
			} else {
				writeUnauthorized(w, "invalid token")
			}
			return
		}
		metrics.RecordAuthAttempt(true)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// CanAccessCase reports whether the request behind ctx may open caseID.
// Every case is open when authentication is off.
func (a *Auth) CanAccessCase(ctx context.Context, caseID string) bool {
	if !a.Enabled() {
		return true
	}
	c := GetClaims(ctx)
	return c != nil && c.CanAccess(caseID)
}

// GetClaims returns the claims stored by Middleware, or nil.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func bearerToken(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: msg, Code: http.StatusUnauthorized})
}
