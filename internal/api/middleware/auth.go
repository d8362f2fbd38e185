package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kiranshivaraju/reviewpulse/internal/api/response"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

// TokenCookie is the cookie the extension's login flow sets.
const TokenCookie = "token"

// Claims is the payload of tokens issued by the account service.
type Claims struct {
	Email     string `json:"email"`
	FirstName string `json:"user_firstname"`
	jwt.RegisteredClaims
}

// Auth verifies HS256 tokens issued by the account service.
type Auth struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuth creates a new Auth middleware.
func NewAuth(secret string) *Auth {
	return &Auth{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Authenticate reads the token from the token cookie or a Bearer header,
// verifies it and stores the requester identity in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Missing authentication token", nil)
			return
		}

		var claims Claims
		_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err != nil || claims.Email == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Invalid authentication token", nil)
			return
		}

		ctx := SetIdentity(r.Context(), models.Identity{
			Email:     claims.Email,
			FirstName: claims.FirstName,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
