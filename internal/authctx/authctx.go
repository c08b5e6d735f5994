// Package authctx decodes the bearer token on an inbound HTTP request into
// the authenticated user identity the rest of the core operates under.
package authctx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingCredentials is returned when a request carries no bearer token.
var ErrMissingCredentials = errors.New("authctx: missing bearer token")

// ErrInvalidToken is returned when a bearer token fails signature or claim
// validation.
var ErrInvalidToken = errors.New("authctx: invalid token")

// User is the authenticated identity threaded through HandleInput.User and
// every Store/Router call that scopes data by owner.
type User struct {
	ID    string
	Email string
}

// Claims is the JWT claim set this core issues and verifies. Subject carries
// the user ID that scopes every conversation and tool call.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies bearer tokens against a single HMAC secret.
type Service struct {
	secret []byte
	expiry time.Duration
}

// NewService builds a Service. expiry<=0 issues tokens that never expire.
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Issue signs a token for userID, for use by a local login/dev-token path;
// production deployments are expected to front this with a real identity
// provider and treat this core as a relying party only.
func (s *Service) Issue(userID, email string) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("authctx: service has no secret configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("authctx: user id required")
	}
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies token, returning the User it carries.
func (s *Service) Validate(token string) (User, error) {
	if len(s.secret) == 0 {
		return User{}, errors.New("authctx: service has no secret configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return User{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return User{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return User{}, ErrInvalidToken
	}
	return User{ID: claims.Subject, Email: strings.TrimSpace(claims.Email)}, nil
}

// FromRequest extracts and validates the bearer token on r.
func (s *Service) FromRequest(r *http.Request) (User, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return User{}, ErrMissingCredentials
	}
	return s.Validate(token)
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

type userContextKey struct{}

// WithUser attaches user to ctx.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// FromContext retrieves the user attached by WithUser, or a zero User and
// false if none was attached.
func FromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey{}).(User)
	return user, ok
}

// Middleware validates the bearer token on every request, rejecting
// unauthenticated requests with 401 before they reach next.
func Middleware(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := service.FromRequest(r)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
