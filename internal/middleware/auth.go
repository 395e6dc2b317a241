// Package middleware содержит HTTP middleware сервиса ZapTasks.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	sessionCookieName = "__session"
	bearerPrefix      = "Bearer "
	clockSkew         = 5 * time.Second
)

// ErrUnsupportedKey возвращается, если выпуск токенов невозможен с ключом проверки.
var ErrUnsupportedKey = errors.New("token issuing requires an HMAC key")

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет сессионный токен провайдера идентификации.
type AuthMiddleware struct {
	key    any
	method jwt.SigningMethod
}

// NewAuthMiddleware создаёт middleware по ключу проверки: PEM открытого ключа RSA
// для RS256 или общий секрет для HS256. Пустой ключ заменяется случайным.
func NewAuthMiddleware(verifyKey string) (*AuthMiddleware, error) {
	if strings.Contains(verifyKey, "-----BEGIN") {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(verifyKey))
		if err != nil {
			return nil, fmt.Errorf("parse session public key: %w", err)
		}
		return &AuthMiddleware{key: pub, method: jwt.SigningMethodRS256}, nil
	}

	key := []byte(verifyKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}

	return &AuthMiddleware{key: key, method: jwt.SigningMethodHS256}, nil
}

// Middleware проверяет токен и добавляет пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := sessionToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized)
			return
		}

		ident, err := a.parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}

// IssueToken подписывает сессионный токен. Доступно только для ключа HMAC.
func (a *AuthMiddleware) IssueToken(ident model.Identity, ttl time.Duration) (string, error) {
	if a.method != jwt.SigningMethodHS256 {
		return "", ErrUnsupportedKey
	}

	now := time.Now()
	claims := sessionClaims{
		Email: ident.Email,
		Name:  ident.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(a.method, claims).SignedString(a.key)
}

func (a *AuthMiddleware) parse(raw string) (model.Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{a.method.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Identity{}, err
	}
	if claims.Subject == "" {
		return model.Identity{}, errors.New("session token has no subject")
	}

	return model.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}

func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(h[len(bearerPrefix):])
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// WithIdentity добавляет пользователя в контекст.
func WithIdentity(ctx context.Context, ident model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// IdentityFromContext извлекает пользователя из контекста запроса.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	ident, ok := ctx.Value(identityKey).(model.Identity)
	return ident, ok && ident.UserID != ""
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": http.StatusText(status)})
}
