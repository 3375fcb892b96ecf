// Package auth verifies identity provider tokens and attaches the acting user to requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Development-mode identity headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// AnonymousID identifies callers without an identity in development mode.
const AnonymousID = "anonymous"

// Leeway tolerates clock skew between the identity provider and this service.
const Leeway = 30 * time.Second

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// User is the acting user of a request.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Claims are the token claims read by the verifier.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Config configures token verification. An empty Secret enables development mode.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier for cfg.
func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Secret == "" {
		log.Warn().Msg("No auth secret configured, trusting identity headers (development mode)")
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// DevMode reports whether tokens are skipped in favour of identity headers.
func (v *Verifier) DevMode() bool {
	return len(v.secret) == 0
}

// Verify parses a token and returns its user.
func (v *Verifier) Verify(token string) (*User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return &User{ID: claims.Subject, Name: name}, nil
}

// Middleware authenticates every request and stores the user in its context.
// Tokens come from the Authorization header, or the access_token query parameter
// for clients that cannot set headers (EventSource).
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v.DevMode() {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), headerUser(r))))
			return
		}

		user, err := v.Verify(bearerToken(r))
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected request")
			w.Header().Set("WWW-Authenticate", `Bearer realm="retroboard"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

func headerUser(r *http.Request) *User {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		id = AnonymousID
	}
	name := strings.TrimSpace(r.Header.Get(HeaderUserName))
	if name == "" {
		name = id
	}
	return &User{ID: id, Name: name}
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// FromContext returns the user stored by the middleware.
func FromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*User)
	return user, ok && user != nil
}
