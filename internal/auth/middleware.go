package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/hourvillage/timebank-backend/internal/common/utils"
)

// Claims carried by an access token. Tenant scoping rides in the token so
// that every downstream query is bound to one community.
type Claims struct {
	UserID   int64  `json:"user_id"`
	TenantID int64  `json:"tenant_id"`
	Type     string `json:"type"` // "access" or "refresh"
}

// Middleware verifies bearer tokens and stamps the caller's identity into
// the request context.
type Middleware struct {
	secret string
}

func NewMiddleware(secret string) *Middleware {
	return &Middleware{secret: secret}
}

// Authenticate protects a route: it verifies the JWT and adds userID and
// tenantID to the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		claims, err := m.validateToken(token)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		if claims.Type != "access" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token type")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "tenantID", claims.TenantID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID := int64Claim(claims, "user_id")
	if userID == 0 {
		return nil, errors.New("missing user_id in token")
	}
	tenantID := int64Claim(claims, "tenant_id")
	if tenantID == 0 {
		return nil, errors.New("missing tenant_id in token")
	}

	return &Claims{
		UserID:   userID,
		TenantID: tenantID,
		Type:     stringClaim(claims, "type"),
	}, nil
}

// extractToken pulls the JWT out of a "Bearer <token>" Authorization header.
func (m *Middleware) extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func int64Claim(claims jwt.MapClaims, key string) int64 {
	if val, ok := claims[key].(float64); ok {
		return int64(val)
	}
	return 0
}

// GetUserIDFromContext extracts the caller's user ID from a request context.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value("userID").(int64)
	return userID, ok
}

// GetTenantIDFromContext extracts the caller's tenant ID from a request context.
func GetTenantIDFromContext(ctx context.Context) (int64, bool) {
	tenantID, ok := ctx.Value("tenantID").(int64)
	return tenantID, ok
}
