package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"nauvus-backend/internal/config"
	"nauvus-backend/internal/security"
)

type claimsKey struct{}

// AuthMiddleware checks the bearer token against the security level of the
// matched route.
type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.GetSecurityLevel(name)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractToken(r)
		if !ok {
			writeErrorMessage(w, http.StatusUnauthorized, "authorization token is not provided")
			return
		}

		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			writeErrorMessage(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}

		if err := checkSecurityLevel(level, claims); err != nil {
			writeErrorMessage(w, http.StatusForbidden, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func extractToken(r *http.Request) (string, bool) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", false
	}
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return token, true
}

func checkSecurityLevel(level config.SecurityLevel, claims *security.UserClaims) error {
	switch level {
	case config.SecurityCarrier:
		if !claims.HasRole(security.RoleCarrier) || claims.CarrierID == 0 {
			return security.ErrForbidden
		}
	case config.SecurityOperator:
		if !claims.HasRole(security.RoleOperator) {
			return security.ErrForbidden
		}
	}
	return nil
}

// CarrierIDFromContext returns the carrier the authenticated token acts for.
func CarrierIDFromContext(ctx context.Context) (int64, error) {
	claims, ok := ctx.Value(claimsKey{}).(*security.UserClaims)
	if !ok || claims.CarrierID == 0 {
		return 0, errors.New("carrier_id is not provided in token")
	}
	return claims.CarrierID, nil
}
