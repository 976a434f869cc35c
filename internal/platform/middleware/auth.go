package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"custodia/pkg/domain"
)

// Claims carries the identity facts the core needs from the external
// identity provider. Session issuance itself is out of scope; we only
// validate tokens it minted.
type Claims struct {
	ActorID domain.ActorID
	Email   string
}

// TokenValidator validates bearer tokens from the identity collaborator.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key []byte
}

func NewHMACValidator(signingKey string) *HMACValidator {
	return &HMACValidator{key: []byte(signingKey)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	actorID, err := domain.ParseActorID(sub)
	if err != nil {
		return nil, fmt.Errorf("token subject is not an actor id: %w", err)
	}

	email, _ := claims["email"].(string)
	return &Claims{ActorID: actorID, Email: email}, nil
}

type contextKeyActorID struct{}
type contextKeyActorEmail struct{}

var (
	// ContextKeyActorID is exported for use in handlers and tests.
	ContextKeyActorID    = contextKeyActorID{}
	ContextKeyActorEmail = contextKeyActorEmail{}
)

// GetActorID retrieves the authenticated actor ID from the context.
func GetActorID(ctx context.Context) domain.ActorID {
	if id, ok := ctx.Value(ContextKeyActorID).(domain.ActorID); ok {
		return id
	}
	return domain.ActorID{}
}

// WithActorID injects an actor ID into the context. Useful for service
// tests that don't run the full middleware chain.
func WithActorID(ctx context.Context, id domain.ActorID) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, id)
}

// GetActorEmail retrieves the authenticated actor's email from the context.
func GetActorEmail(ctx context.Context) string {
	if email, ok := ctx.Value(ContextKeyActorEmail).(string); ok {
		return email
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             errCode,
		"error_description": errDesc,
	})
}

// RequireAuth validates the bearer token and stores the actor identity in
// the request context. Requests without a valid token never reach handlers.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx := WithActorID(r.Context(), claims.ActorID)
			ctx = context.WithValue(ctx, ContextKeyActorEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
