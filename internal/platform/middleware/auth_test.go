package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"custodia/pkg/domain"
)

const testSigningKey = "test-signing-key"

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *HMACValidator
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = NewHMACValidator(testSigningKey)
}

func signToken(s *AuthMiddlewareSuite, key string, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	s.Require().NoError(err)
	return signed
}

func (s *AuthMiddlewareSuite) TestValidateToken() {
	actorID := domain.NewActorID()

	s.Run("accepts a valid token and extracts the actor", func() {
		token := signToken(s, testSigningKey, jwt.MapClaims{
			"sub":   actorID.String(),
			"email": "agent@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		claims, err := s.validator.ValidateToken(token)
		s.Require().NoError(err)
		s.Equal(actorID, claims.ActorID)
		s.Equal("agent@example.com", claims.Email)
	})

	s.Run("rejects a token signed with another key", func() {
		token := signToken(s, "wrong-key", jwt.MapClaims{
			"sub": actorID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := s.validator.ValidateToken(token)
		s.Error(err)
	})

	s.Run("rejects an expired token", func() {
		token := signToken(s, testSigningKey, jwt.MapClaims{
			"sub": actorID.String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := s.validator.ValidateToken(token)
		s.Error(err)
	})

	s.Run("rejects a subject that is not an actor id", func() {
		token := signToken(s, testSigningKey, jwt.MapClaims{
			"sub": "someone",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := s.validator.ValidateToken(token)
		s.Error(err)
	})
}

func (s *AuthMiddlewareSuite) TestWriteJSONError() {
	s.Run("escapes quotes in the description", func() {
		rec := httptest.NewRecorder()
		writeJSONError(rec, http.StatusUnauthorized, "unauthorized", `token "abc" rejected`)

		var body map[string]string
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&body))
		s.Equal("unauthorized", body["error"])
		s.Equal(`token "abc" rejected`, body["error_description"])
	})
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	actorID := domain.NewActorID()

	var seen domain.ActorID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetActorID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := RequireAuth(s.validator, log)(next)

	s.Run("passes a valid bearer token through", func() {
		token := signToken(s, testSigningKey, jwt.MapClaims{
			"sub": actorID.String(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(actorID, seen)
	})

	s.Run("rejects a missing header", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("rejects a malformed header", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}
