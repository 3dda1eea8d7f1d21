package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cheertaboi/storefront-order-service/internal/api/httpx"
	"github.com/Cheertaboi/storefront-order-service/internal/config"
	"github.com/Cheertaboi/storefront-order-service/internal/models"
	"github.com/Cheertaboi/storefront-order-service/pkg/logger"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	sessionMaxAge = 30 * 24 * time.Hour
)

// Claims are the bearer token claims; Subject carries the numeric user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is who is calling, as resolved from the bearer token and the session cookie.
type Identity struct {
	Caller models.Caller
	Role   string
}

func (i Identity) Admin() bool {
	return i.Caller.Authenticated() && i.Role == RoleAdmin
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// CallerFromContext is the models.Caller part of the request identity.
func CallerFromContext(ctx context.Context) models.Caller {
	return IdentityFromContext(ctx).Caller
}

var errTokenSubject = errors.New("token subject is not a user id")

// Authenticator resolves HS256 bearer tokens and anonymous checkout sessions.
type Authenticator struct {
	secret       []byte
	cookieName   string
	cookieSecure bool
	parser       *jwt.Parser
	newSession   func() string
}

func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret:       []byte(cfg.JWTSecret),
		cookieName:   cfg.SessionCookie,
		cookieSecure: cfg.CookieSecure,
		parser:       jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		newSession:   uuid.NewString,
	}
}

// Identify attaches the caller's Identity to the request. A present but invalid bearer
// token is rejected; a caller with neither a token nor a session cookie is issued a session.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id Identity

		if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
			claims, err := a.parse(raw)
			if err != nil {
				logger.FromContext(r.Context()).Info("bearer token rejected", zap.Error(err))
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_token", "bearer token is invalid or expired", http.StatusUnauthorized))
				return
			}
			userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
			id.Caller.UserID = userID
			id.Role = claims.Role
		}

		if c, err := r.Cookie(a.cookieName); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				id.Caller.SessionID = c.Value
			}
		}
		if id.Caller.SessionID == "" && !id.Caller.Authenticated() {
			id.Caller.SessionID = a.newSession()
			http.SetCookie(w, &http.Cookie{
				Name:     a.cookieName,
				Value:    id.Caller.SessionID,
				Path:     "/",
				MaxAge:   int(sessionMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   a.cookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin lets through only callers whose token carries the admin role.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		switch {
		case !id.Caller.Authenticated():
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "admin token required", http.StatusUnauthorized))
		case !id.Admin():
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if id, err := strconv.ParseInt(claims.Subject, 10, 64); err != nil || id <= 0 {
		return nil, errTokenSubject
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
